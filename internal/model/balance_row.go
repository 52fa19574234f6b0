package model

// TotalAddress is the sentinel address of the synthetic TOTAL row.
const TotalAddress = "TOTAL"

// AddressBalanceRow is the persisted state of one address, or the TOTAL row.
// NetAmount is signed: unlocks can exceed locks after rounding.
type AddressBalanceRow struct {
	Address       string `json:"address"`
	TotalFrozen   uint64 `json:"total_frozen"`
	TotalUnfrozen uint64 `json:"total_unfrozen"`
	NetAmount     int64  `json:"net_amount"`
	BlockNumber   uint64 `json:"block_number"`
	IsTotal       bool   `json:"is_total"`
}
