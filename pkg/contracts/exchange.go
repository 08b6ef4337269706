package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ExchangeCaller is a read-only Go binding around the Exchange contract.
type ExchangeCaller struct {
	contract *bind.BoundContract // Generic contract wrapper for the low level calls
}

// NewExchangeCaller creates a new read-only instance of Exchange, bound to a specific deployed contract.
func NewExchangeCaller(address common.Address, caller bind.ContractCaller) *ExchangeCaller {
	return &ExchangeCaller{contract: bind.NewBoundContract(address, exchangeABI, caller, nil, nil)}
}

// ExchangeRateOf is a free data retrieval call binding the contract method exchangeRateOf.
//
// Solidity: function exchangeRateOf(address token) view returns(uint256 rate, uint256 decimals)
func (_Exchange *ExchangeCaller) ExchangeRateOf(opts *bind.CallOpts, token common.Address) (*big.Int, *big.Int, error) {
	var out []interface{}
	err := _Exchange.contract.Call(opts, &out, "exchangeRateOf", token)
	if err != nil {
		return new(big.Int), new(big.Int), err
	}

	out0 := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	out1 := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	return out0, out1, err
}
