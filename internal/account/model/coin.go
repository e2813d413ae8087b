package model

type Coin string
type Network string

var (
	NUKO Coin = "NUKO"
	ETH  Coin = "ETH"
)

var (
	Testnet Network = "testnet"
	Mainnet Network = "mainnet"
)
