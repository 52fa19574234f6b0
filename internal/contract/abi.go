package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const timelockABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "addr", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amt", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "time", "type": "uint256"}
    ],
    "name": "TokensFrozen",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "addr", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amt", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "time", "type": "uint256"}
    ],
    "name": "TokensUnfrozen",
    "type": "event"
  }
]`

var (
	timelockABI     abi.ABI
	timelockABIOnce sync.Once
	timelockABIErr  error
)

// TimelockABI returns the parsed default timelock ABI.
func TimelockABI() (abi.ABI, error) {
	timelockABIOnce.Do(func() {
		timelockABI, timelockABIErr = abi.JSON(strings.NewReader(timelockABIJSON))
	})
	return timelockABI, timelockABIErr
}

// LoadABI reads an ABI file. Both a bare JSON array and a build artifact
// with an "abi" field are accepted. An empty path yields TimelockABI.
func LoadABI(path string) (abi.ABI, error) {
	if strings.TrimSpace(path) == "" {
		return TimelockABI()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read abi %s: %w", path, err)
	}
	return ParseABI(data)
}

// ParseABI parses ABI JSON in either accepted shape.
func ParseABI(data []byte) (abi.ABI, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return abi.ABI{}, fmt.Errorf("empty abi")
	}

	if data[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(data, &artifact); err != nil {
			return abi.ABI{}, fmt.Errorf("parse abi artifact: %w", err)
		}
		if len(artifact.ABI) == 0 {
			return abi.ABI{}, fmt.Errorf("abi artifact has no abi field")
		}
		data = artifact.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	return parsed, nil
}
