package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20ABI is the subset of the ERC20 ABI used by scheduled payments
const ERC20ABI = `[
	{"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

// ConfigABI is the ABI of the module's Config contract
const ConfigABI = `[
	{"inputs":[],"name":"crankAddress","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"feeReceiver","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"validForDays","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ExchangeABI is the ABI of the Exchange contract
const ExchangeABI = `[
	{"inputs":[{"internalType":"address","name":"token","type":"address"}],"name":"exchangeRateOf","outputs":[{"internalType":"uint256","name":"rate","type":"uint256"},{"internalType":"uint256","name":"decimals","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ModuleABI is the avatar facing part of the ScheduledPaymentModule ABI
const ModuleABI = `[
	{"inputs":[{"internalType":"bytes32","name":"spHash","type":"bytes32"}],"name":"schedulePayment","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"bytes32","name":"spHash","type":"bytes32"}],"name":"cancelScheduledPayment","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"_config","type":"address"}],"name":"setConfig","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":false,"internalType":"bytes32","name":"spHash","type":"bytes32"}],"name":"PaymentScheduled","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":false,"internalType":"bytes32","name":"spHash","type":"bytes32"}],"name":"ScheduledPaymentCancelled","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":false,"internalType":"bytes32","name":"spHash","type":"bytes32"}],"name":"ScheduledPaymentExecuted","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"config","type":"address"}],"name":"ConfigSet","type":"event"}
]`

var (
	erc20ABI    = mustParse(ERC20ABI)
	configABI   = mustParse(ConfigABI)
	exchangeABI = mustParse(ExchangeABI)
	moduleABI   = mustParse(ModuleABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("contracts: invalid abi: %v", err))
	}
	return parsed
}

// TransferSelector is the 4-byte selector of ERC20 transfer
var TransferSelector = erc20ABI.Methods["transfer"].ID

// PackTransfer builds the calldata of an ERC20 transfer
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, amount)
}

// UnpackTransfer decodes ERC20 transfer calldata
func UnpackTransfer(data []byte) (common.Address, *big.Int, error) {
	if len(data) < 4 {
		return common.Address{}, nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	method, err := erc20ABI.MethodById(data[:4])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("unknown selector %x: %v", data[:4], err)
	}
	if method.Name != "transfer" {
		return common.Address{}, nil, fmt.Errorf("unsupported method %s", method.Name)
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to unpack transfer: %v", err)
	}
	to, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("unexpected recipient type %T", values[0])
	}
	amount, ok := values[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("unexpected amount type %T", values[1])
	}
	return to, amount, nil
}

// PackSchedulePayment builds the calldata the avatar sends to schedule a payment
func PackSchedulePayment(spHash common.Hash) ([]byte, error) {
	return moduleABI.Pack("schedulePayment", [32]byte(spHash))
}

// PackCancelScheduledPayment builds the calldata the avatar sends to cancel a payment
func PackCancelScheduledPayment(spHash common.Hash) ([]byte, error) {
	return moduleABI.Pack("cancelScheduledPayment", [32]byte(spHash))
}
