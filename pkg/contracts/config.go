package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ConfigCaller is a read-only Go binding around the module Config contract.
type ConfigCaller struct {
	contract *bind.BoundContract // Generic contract wrapper for the low level calls
}

// NewConfigCaller creates a new read-only instance of Config, bound to a specific deployed contract.
func NewConfigCaller(address common.Address, caller bind.ContractCaller) *ConfigCaller {
	return &ConfigCaller{contract: bind.NewBoundContract(address, configABI, caller, nil, nil)}
}

// CrankAddress is a free data retrieval call binding the contract method crankAddress.
//
// Solidity: function crankAddress() view returns(address)
func (_Config *ConfigCaller) CrankAddress(opts *bind.CallOpts) (common.Address, error) {
	return _Config.address(opts, "crankAddress")
}

// FeeReceiver is a free data retrieval call binding the contract method feeReceiver.
//
// Solidity: function feeReceiver() view returns(address)
func (_Config *ConfigCaller) FeeReceiver(opts *bind.CallOpts) (common.Address, error) {
	return _Config.address(opts, "feeReceiver")
}

// ValidForDays is a free data retrieval call binding the contract method validForDays.
//
// Solidity: function validForDays() view returns(uint256)
func (_Config *ConfigCaller) ValidForDays(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	err := _Config.contract.Call(opts, &out, "validForDays")
	if err != nil {
		return new(big.Int), err
	}

	out0 := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return out0, err
}

func (_Config *ConfigCaller) address(opts *bind.CallOpts, method string) (common.Address, error) {
	var out []interface{}
	err := _Config.contract.Call(opts, &out, method)
	if err != nil {
		return common.Address{}, err
	}

	out0 := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	return out0, err
}
