package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// UniswapV3FactoryABI is the pool lookup of the Uniswap v3 factory
const UniswapV3FactoryABI = `[
	{"inputs":[{"internalType":"address","name":"tokenA","type":"address"},{"internalType":"address","name":"tokenB","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"internalType":"address","name":"pool","type":"address"}],"stateMutability":"view","type":"function"}
]`

// UniswapV3PoolABI is the oracle part of a Uniswap v3 pool
const UniswapV3PoolABI = `[
	{"inputs":[{"internalType":"uint32[]","name":"secondsAgos","type":"uint32[]"}],"name":"observe","outputs":[{"internalType":"int56[]","name":"tickCumulatives","type":"int56[]"},{"internalType":"uint160[]","name":"secondsPerLiquidityCumulativeX128s","type":"uint160[]"}],"stateMutability":"view","type":"function"}
]`

var (
	factoryABI = mustParse(UniswapV3FactoryABI)
	poolABI    = mustParse(UniswapV3PoolABI)
)

// FactoryCaller is a read-only Go binding around the Uniswap v3 factory.
type FactoryCaller struct {
	contract *bind.BoundContract
}

// NewFactoryCaller creates a new read-only instance of the factory, bound to a specific deployed contract.
func NewFactoryCaller(address common.Address, caller bind.ContractCaller) *FactoryCaller {
	return &FactoryCaller{contract: bind.NewBoundContract(address, factoryABI, caller, nil, nil)}
}

// GetPool is a free data retrieval call binding the contract method getPool.
//
// Solidity: function getPool(address tokenA, address tokenB, uint24 fee) view returns(address pool)
func (_Factory *FactoryCaller) GetPool(opts *bind.CallOpts, tokenA, tokenB common.Address, fee *big.Int) (common.Address, error) {
	var out []interface{}
	err := _Factory.contract.Call(opts, &out, "getPool", tokenA, tokenB, fee)
	if err != nil {
		return *new(common.Address), err
	}

	out0 := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	return out0, err
}

// PoolCaller is a read-only Go binding around a Uniswap v3 pool.
type PoolCaller struct {
	contract *bind.BoundContract
}

// NewPoolCaller creates a new read-only instance of a pool, bound to a specific deployed contract.
func NewPoolCaller(address common.Address, caller bind.ContractCaller) *PoolCaller {
	return &PoolCaller{contract: bind.NewBoundContract(address, poolABI, caller, nil, nil)}
}

// Observe is a free data retrieval call binding the contract method observe.
// Only the tick cumulatives are returned.
//
// Solidity: function observe(uint32[] secondsAgos) view returns(int56[] tickCumulatives, uint160[] secondsPerLiquidityCumulativeX128s)
func (_Pool *PoolCaller) Observe(opts *bind.CallOpts, secondsAgos []uint32) ([]*big.Int, error) {
	var out []interface{}
	err := _Pool.contract.Call(opts, &out, "observe", secondsAgos)
	if err != nil {
		return nil, err
	}

	out0 := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	return out0, err
}
