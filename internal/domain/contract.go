package domain

import "encoding/json"

// ContractSpec is a static oracle feed definition.
type ContractSpec struct {
	Ticker          string `json:"ticker"`
	ContractAddress string `json:"contractAddress"`
	Decimals        int    `json:"decimals"`
	Chain           string `json:"chain"`
	Active          *bool  `json:"active,omitempty"`
}

// ContractABI is a stored oracle feed with the ABI used to call it.
type ContractABI struct {
	Ticker          string
	ContractAddress string
	Decimals        int
	Chain           string
	Active          bool
	ABI             json.RawMessage
}
