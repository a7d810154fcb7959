package model

// Chain describes a supported network.
type Chain struct {
	ID           string `json:"id" mapstructure:"id"`
	Name         string `json:"name" mapstructure:"name"`
	NativeSymbol string `json:"native_symbol" mapstructure:"native_symbol"`
}
