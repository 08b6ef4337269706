package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferCalldata(t *testing.T) {
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	amount := big.NewInt(1_000_000_000_000)

	data, err := PackTransfer(to, amount)
	require.NoError(t, err)
	assert.Equal(t, "0xa9059cbb", hexutil.Encode(data[:4]))
	assert.Equal(t, TransferSelector, data[:4])
	assert.Len(t, data, 4+64)

	gotTo, gotAmount, err := UnpackTransfer(data)
	require.NoError(t, err)
	assert.Equal(t, to, gotTo)
	assert.Equal(t, 0, amount.Cmp(gotAmount))
}

func TestUnpackTransferRejectsOtherCalls(t *testing.T) {
	_, _, err := UnpackTransfer([]byte{0x01})
	assert.Error(t, err)

	_, _, err = UnpackTransfer(hexutil.MustDecode("0xdeadbeef"))
	assert.Error(t, err)

	balanceOf, err := erc20ABI.Pack("balanceOf", common.Address{})
	require.NoError(t, err)
	_, _, err = UnpackTransfer(balanceOf)
	assert.ErrorContains(t, err, "unsupported method balanceOf")
}

func TestModuleCalldata(t *testing.T) {
	h := common.HexToHash("0x01")
	data, err := PackSchedulePayment(h)
	require.NoError(t, err)
	assert.Len(t, data, 4+32)
	assert.Equal(t, h.Bytes(), data[4:])

	cancel, err := PackCancelScheduledPayment(h)
	require.NoError(t, err)
	assert.NotEqual(t, data[:4], cancel[:4])
}
