package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Only the methods this client calls are declared.

const tokenRegistryABIJSON = `[
  {"type":"function","name":"getTokenBySymbol","stateMutability":"view",
   "inputs":[{"name":"_symbol","type":"string"}],
   "outputs":[{"name":"","type":"address"},{"name":"","type":"string"},{"name":"","type":"string"},
              {"name":"","type":"uint8"},{"name":"","type":"bytes"},{"name":"","type":"bytes"}]},
  {"type":"function","name":"getTokenMetaData","stateMutability":"view",
   "inputs":[{"name":"_token","type":"address"}],
   "outputs":[{"name":"","type":"address"},{"name":"","type":"string"},{"name":"","type":"string"},
              {"name":"","type":"uint8"},{"name":"","type":"bytes"},{"name":"","type":"bytes"}]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"_owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

const etherTokenABIJSON = `[
  {"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]}
]`

const exchangeABIJSON = `[
  {"type":"function","name":"fillOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"orderAddresses","type":"address[5]"},{"name":"orderValues","type":"uint256[6]"},
             {"name":"fillTakerTokenAmount","type":"uint256"},
             {"name":"shouldThrowOnInsufficientBalanceOrAllowance","type":"bool"},
             {"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],
   "outputs":[{"name":"filledTakerTokenAmount","type":"uint256"}]},
  {"type":"function","name":"fillOrKillOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"orderAddresses","type":"address[5]"},{"name":"orderValues","type":"uint256[6]"},
             {"name":"fillTakerTokenAmount","type":"uint256"},
             {"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],
   "outputs":[]}
]`

var (
	tokenRegistryABI = mustParseABI(tokenRegistryABIJSON)
	erc20ABI         = mustParseABI(erc20ABIJSON)
	etherTokenABI    = mustParseABI(etherTokenABIJSON)
	exchangeABI      = mustParseABI(exchangeABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("ethereum: parse abi: " + err.Error())
	}
	return parsed
}
