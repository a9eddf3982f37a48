package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/eip4337-console/core/chainio/aa"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/userop"
)

var (
	// EntryPointCode and WalletCode are the creation code prefixes the fake
	// chain recognises. Any other creation code deploys an inert contract.
	EntryPointCode = []byte("fake-entrypoint-v0.7")
	WalletCode     = []byte("fake-simple-account")

	// OperationGasUsed is charged to the wallet deposit for every operation.
	OperationGasUsed = big.NewInt(50_000)
)

// RevertError mimics the JSON-RPC error a node returns for a reverted
// eth_call. It implements rpc.DataError.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string          { return "execution reverted" }
func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

// FakeEntryPoint holds the state of a simulated v0.7 EntryPoint.
type FakeEntryPoint struct {
	Address  common.Address
	Nonces   map[common.Address]*big.Int
	Deposits map[common.Address]*big.Int
	// Wallets maps a wallet address to its owner.
	Wallets map[common.Address]common.Address
}

// FakeChain is an in-memory chain.Node. Every transaction is mined in its own
// block as soon as it is sent.
type FakeChain struct {
	ChainIDValue *big.Int
	GasPrice     *big.Int
	TipCap       *big.Int
	BaseFee      *big.Int
	Block        uint64
	NodeAccounts []common.Address
	IsSyncing    bool

	// FailCalls makes eth_call fail for the named EntryPoint method.
	FailCalls map[string]error
	// RevertDeploys mines every contract creation with status 0.
	RevertDeploys bool
	// FailSend is returned from SendTransaction and SendNodeTransaction.
	FailSend error
	// PrunedHistory fails every eth_call pinned to a past block, like a
	// node without archive state.
	PrunedHistory bool

	Balances    map[common.Address]*big.Int
	Nonces      map[common.Address]uint64
	Code        map[common.Address][]byte
	EntryPoints map[common.Address]*FakeEntryPoint

	Sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	txs      map[common.Hash]*types.Transaction
}

func NewFakeChain() *FakeChain {
	defaultAccount := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	fc := &FakeChain{
		ChainIDValue: big.NewInt(31337),
		GasPrice:     big.NewInt(1_000_000_000),
		TipCap:       big.NewInt(1_000_000_000),
		BaseFee:      big.NewInt(875_000_000),
		Block:        1,
		NodeAccounts: []common.Address{defaultAccount},
		FailCalls:    map[string]error{},
		Balances:     map[common.Address]*big.Int{},
		Nonces:       map[common.Address]uint64{},
		Code:         map[common.Address][]byte{},
		EntryPoints:  map[common.Address]*FakeEntryPoint{},
		receipts:     map[common.Hash]*types.Receipt{},
		txs:          map[common.Hash]*types.Transaction{},
	}
	fc.Balances[defaultAccount] = ether(10_000)
	return fc
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func (fc *FakeChain) balance(addr common.Address) *big.Int {
	if b, ok := fc.Balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

// DeployEntryPoint installs an EntryPoint directly, bypassing transactions.
func (fc *FakeChain) DeployEntryPoint(addr common.Address) *FakeEntryPoint {
	ep := &FakeEntryPoint{
		Address:  addr,
		Nonces:   map[common.Address]*big.Int{},
		Deposits: map[common.Address]*big.Int{},
		Wallets:  map[common.Address]common.Address{},
	}
	fc.EntryPoints[addr] = ep
	fc.Code[addr] = EntryPointCode
	return ep
}

// RegisterWallet installs a wallet owned by owner and deposits deposit for it
// in the EntryPoint.
func (fc *FakeChain) RegisterWallet(ep *FakeEntryPoint, wallet, owner common.Address, deposit *big.Int) {
	ep.Wallets[wallet] = owner
	ep.Deposits[wallet] = new(big.Int).Set(deposit)
	fc.Code[wallet] = WalletCode
}

func (fc *FakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(fc.ChainIDValue), nil
}

func (fc *FakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	return fc.Block, nil
}

func (fc *FakeChain) Syncing(ctx context.Context) (bool, error) {
	return fc.IsSyncing, nil
}

func (fc *FakeChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return new(big.Int).Set(fc.balance(account)), nil
}

func (fc *FakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return fc.Nonces[account], nil
}

func (fc *FakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(fc.GasPrice), nil
}

func (fc *FakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(fc.TipCap), nil
}

func (fc *FakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: new(big.Int).SetUint64(fc.Block), BaseFee: fc.BaseFee}, nil
}

func (fc *FakeChain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return fc.Code[account], nil
}

func (fc *FakeChain) Accounts(ctx context.Context) ([]common.Address, error) {
	return fc.NodeAccounts, nil
}

func (fc *FakeChain) SetBalance(ctx context.Context, account common.Address, wei *big.Int) error {
	fc.Balances[account] = new(big.Int).Set(wei)
	return nil
}

func (fc *FakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, ok := fc.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// DropReceipt forgets the receipt for hash so the transaction looks pending.
func (fc *FakeChain) DropReceipt(hash common.Hash) {
	delete(fc.receipts, hash)
}

func (fc *FakeChain) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	tx, ok := fc.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

// SendNodeTransaction simulates eth_sendTransaction from a node account.
func (fc *FakeChain) SendNodeTransaction(ctx context.Context, from, to common.Address, value *big.Int) (common.Hash, error) {
	if fc.FailSend != nil {
		return common.Hash{}, fc.FailSend
	}

	known := false
	for _, a := range fc.NodeAccounts {
		if a == from {
			known = true
		}
	}
	if !known {
		return common.Hash{}, fmt.Errorf("unknown account %s", from.Hex())
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    fc.Nonces[from],
		GasPrice: new(big.Int).Set(fc.GasPrice),
		Gas:      21_000,
		To:       &to,
		Value:    value,
		Data:     from.Bytes(),
	})
	hash := tx.Hash()
	fc.txs[hash] = tx

	status := types.ReceiptStatusSuccessful
	if fc.balance(from).Cmp(value) < 0 {
		status = types.ReceiptStatusFailed
	} else {
		fc.Balances[from] = new(big.Int).Sub(fc.balance(from), value)
		fc.Balances[to] = new(big.Int).Add(fc.balance(to), value)
	}
	fc.Nonces[from]++
	fc.mine(hash, status, 21_000, nil, nil)
	return hash, nil
}

// SendTransaction executes a signed transaction.
func (fc *FakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if fc.FailSend != nil {
		return fc.FailSend
	}

	from, err := types.Sender(types.LatestSignerForChainID(fc.ChainIDValue), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != fc.Nonces[from] {
		return fmt.Errorf("nonce too low: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), fc.Nonces[from])
	}
	if fc.balance(from).Cmp(tx.Value()) < 0 {
		return errors.New("insufficient funds for transfer")
	}

	fc.Nonces[from]++
	fc.Sent = append(fc.Sent, tx)
	fc.txs[tx.Hash()] = tx

	if tx.To() == nil {
		fc.deploy(tx, from)
		return nil
	}

	to := *tx.To()
	if ep, ok := fc.EntryPoints[to]; ok && len(tx.Data()) >= 4 {
		fc.executeEntryPoint(tx, from, ep)
		return nil
	}

	fc.transfer(from, to, tx.Value())
	fc.mine(tx.Hash(), types.ReceiptStatusSuccessful, 21_000, nil, nil)
	return nil
}

func (fc *FakeChain) transfer(from, to common.Address, value *big.Int) {
	fc.Balances[from] = new(big.Int).Sub(fc.balance(from), value)
	fc.Balances[to] = new(big.Int).Add(fc.balance(to), value)
}

func (fc *FakeChain) deploy(tx *types.Transaction, from common.Address) {
	if fc.RevertDeploys {
		fc.mine(tx.Hash(), types.ReceiptStatusFailed, tx.Gas(), nil, nil)
		return
	}

	addr := crypto.CreateAddress(from, tx.Nonce())
	data := tx.Data()
	fc.Code[addr] = data

	switch {
	case bytes.HasPrefix(data, EntryPointCode):
		fc.DeployEntryPoint(addr)
	case bytes.HasPrefix(data, WalletCode) && len(data) >= len(WalletCode)+64:
		args := data[len(data)-64:]
		owner := common.BytesToAddress(args[:32])
		entryPoint := common.BytesToAddress(args[32:])
		if ep, ok := fc.EntryPoints[entryPoint]; ok {
			ep.Wallets[addr] = owner
			fc.Code[addr] = WalletCode
		}
	}

	fc.transfer(from, addr, tx.Value())
	fc.mine(tx.Hash(), types.ReceiptStatusSuccessful, 1_000_000, &addr, nil)
}

func (fc *FakeChain) executeEntryPoint(tx *types.Transaction, from common.Address, ep *FakeEntryPoint) {
	method, err := aa.EntryPointABI.MethodById(tx.Data()[:4])
	if err != nil {
		fc.mine(tx.Hash(), types.ReceiptStatusFailed, tx.Gas(), nil, nil)
		return
	}

	switch method.Name {
	case aa.MethodDepositTo:
		args, err := method.Inputs.Unpack(tx.Data()[4:])
		if err != nil {
			fc.mine(tx.Hash(), types.ReceiptStatusFailed, tx.Gas(), nil, nil)
			return
		}
		account := args[0].(common.Address)
		fc.Balances[from] = new(big.Int).Sub(fc.balance(from), tx.Value())
		total := new(big.Int).Add(ep.deposit(account), tx.Value())
		ep.Deposits[account] = total

		log := fc.entryPointLog(ep, "Deposited", []common.Hash{common.BytesToHash(account.Bytes())}, total)
		fc.mine(tx.Hash(), types.ReceiptStatusSuccessful, 45_000, nil, []*types.Log{log})

	case aa.MethodHandleOps:
		ops, beneficiary, err := aa.NewEntryPoint(ep.Address, nil, nil).UnpackHandleOps(tx.Data())
		if err != nil {
			fc.mine(tx.Hash(), types.ReceiptStatusFailed, tx.Gas(), nil, nil)
			return
		}
		if revert := fc.validateOps(ep, ops); revert != nil {
			fc.mine(tx.Hash(), types.ReceiptStatusFailed, tx.Gas(), nil, nil)
			return
		}
		logs := fc.executeOps(ep, ops, beneficiary)
		fc.mine(tx.Hash(), types.ReceiptStatusSuccessful, 150_000, nil, logs)

	default:
		fc.mine(tx.Hash(), types.ReceiptStatusFailed, tx.Gas(), nil, nil)
	}
}

func (ep *FakeEntryPoint) deposit(account common.Address) *big.Int {
	if d, ok := ep.Deposits[account]; ok {
		return d
	}
	return big.NewInt(0)
}

func (ep *FakeEntryPoint) nonce(account common.Address) *big.Int {
	if n, ok := ep.Nonces[account]; ok {
		return n
	}
	return big.NewInt(0)
}

// UserOpHash reproduces the v0.7 EntryPoint hashing so the fake can verify
// signatures the way the contract does.
func (fc *FakeChain) UserOpHash(ep common.Address, op userop.PackedUserOperation) common.Hash {
	bytes32, _ := abi.NewType("bytes32", "", nil)
	uint256, _ := abi.NewType("uint256", "", nil)
	address, _ := abi.NewType("address", "", nil)

	inner := abi.Arguments{
		{Type: address}, {Type: uint256}, {Type: bytes32}, {Type: bytes32},
		{Type: bytes32}, {Type: uint256}, {Type: bytes32}, {Type: bytes32},
	}
	packed, err := inner.Pack(
		op.Sender, op.Nonce,
		crypto.Keccak256Hash(op.InitCode), crypto.Keccak256Hash(op.CallData),
		op.AccountGasLimits, op.PreVerificationGas, op.GasFees,
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		panic(err)
	}

	outer := abi.Arguments{{Type: bytes32}, {Type: address}, {Type: uint256}}
	encoded, err := outer.Pack(crypto.Keccak256Hash(packed), ep, fc.ChainIDValue)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}

// validateOps returns FailedOp revert data for the first invalid operation.
func (fc *FakeChain) validateOps(ep *FakeEntryPoint, ops []userop.PackedUserOperation) []byte {
	for i, op := range ops {
		owner, ok := ep.Wallets[op.Sender]
		if !ok {
			return failedOp(i, "AA20 account not deployed")
		}
		if op.Nonce.Cmp(ep.nonce(op.Sender)) != 0 {
			return failedOp(i, "AA25 invalid account nonce")
		}
		if !fc.signedBy(ep.Address, op, owner) {
			return failedOp(i, "AA24 signature error")
		}
		if ep.deposit(op.Sender).Cmp(requiredPrefund(op)) < 0 {
			return failedOp(i, "AA21 didn't pay prefund")
		}
	}
	return nil
}

func (fc *FakeChain) signedBy(ep common.Address, op userop.PackedUserOperation, owner common.Address) bool {
	if len(op.Signature) != crypto.SignatureLength {
		return false
	}
	unsigned := op.WithSignature(nil)
	hash := fc.UserOpHash(ep, unsigned)

	sig := make([]byte, len(op.Signature))
	copy(sig, op.Signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == owner
}

func requiredPrefund(op userop.PackedUserOperation) *big.Int {
	verification, call := userop.UnpackUint128Pair(op.AccountGasLimits)
	_, maxFee := userop.UnpackUint128Pair(op.GasFees)
	gas := new(big.Int).Add(verification, call)
	gas.Add(gas, op.PreVerificationGas)
	return gas.Mul(gas, maxFee)
}

func failedOp(index int, reason string) []byte {
	failed := aa.EntryPointABI.Errors["FailedOp"]
	payload, err := failed.Inputs.Pack(big.NewInt(int64(index)), reason)
	if err != nil {
		panic(err)
	}
	return append(append([]byte{}, failed.ID[:4]...), payload...)
}

func (fc *FakeChain) executeOps(ep *FakeEntryPoint, ops []userop.PackedUserOperation, beneficiary common.Address) []*types.Log {
	logs := []*types.Log{fc.entryPointLog(ep, "BeforeExecution", nil)}

	for _, op := range ops {
		hash := fc.UserOpHash(ep.Address, op.WithSignature(nil))
		ep.Nonces[op.Sender] = new(big.Int).Add(ep.nonce(op.Sender), big.NewInt(1))

		success := true
		execute := aa.SimpleAccountABI.Methods[aa.MethodExecute]
		if len(op.CallData) >= 4 && bytes.Equal(op.CallData[:4], execute.ID) {
			args, err := execute.Inputs.Unpack(op.CallData[4:])
			if err != nil {
				success = false
			} else {
				target := args[0].(common.Address)
				value := args[1].(*big.Int)
				data := args[2].([]byte)
				if fc.balance(op.Sender).Cmp(value) < 0 {
					success = false
				} else {
					fc.transfer(op.Sender, target, value)
					logs = append(logs, fc.walletLog(op.Sender, target, value, data))
				}
			}
		}

		_, maxFee := userop.UnpackUint128Pair(op.GasFees)
		cost := new(big.Int).Mul(OperationGasUsed, maxFee)
		ep.Deposits[op.Sender] = new(big.Int).Sub(ep.deposit(op.Sender), cost)
		fc.Balances[beneficiary] = new(big.Int).Add(fc.balance(beneficiary), cost)

		logs = append(logs, fc.entryPointLog(ep, aa.EventUserOperation,
			[]common.Hash{hash, common.BytesToHash(op.Sender.Bytes()), {}},
			op.Nonce, success, cost, OperationGasUsed,
		))
	}
	return logs
}

func (fc *FakeChain) entryPointLog(ep *FakeEntryPoint, name string, indexed []common.Hash, values ...interface{}) *types.Log {
	event := aa.EntryPointABI.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		panic(err)
	}
	return &types.Log{
		Address: ep.Address,
		Topics:  append([]common.Hash{event.ID}, indexed...),
		Data:    data,
	}
}

func (fc *FakeChain) walletLog(wallet, target common.Address, value *big.Int, data []byte) *types.Log {
	event := aa.SimpleAccountABI.Events["Executed"]
	payload, err := event.Inputs.NonIndexed().Pack(value, data)
	if err != nil {
		panic(err)
	}
	return &types.Log{
		Address: wallet,
		Topics:  []common.Hash{event.ID, common.BytesToHash(target.Bytes())},
		Data:    payload,
	}
}

func (fc *FakeChain) mine(hash common.Hash, status uint64, gasUsed uint64, contract *common.Address, logs []*types.Log) {
	fc.Block++
	blockNumber := new(big.Int).SetUint64(fc.Block)

	receipt := &types.Receipt{
		Type:              types.DynamicFeeTxType,
		Status:            status,
		CumulativeGasUsed: gasUsed,
		GasUsed:           gasUsed,
		TxHash:            hash,
		BlockNumber:       blockNumber,
		BlockHash:         crypto.Keccak256Hash(blockNumber.Bytes()),
		EffectiveGasPrice: new(big.Int).Set(fc.GasPrice),
		Logs:              []*types.Log{},
	}
	if contract != nil {
		receipt.ContractAddress = *contract
	}
	for i, l := range logs {
		l.TxHash = hash
		l.BlockNumber = fc.Block
		l.BlockHash = receipt.BlockHash
		l.Index = uint(i)
		receipt.Logs = append(receipt.Logs, l)
	}
	fc.receipts[hash] = receipt
}

// CallContract answers the EntryPoint view methods and replays handleOps
// validation without changing state.
func (fc *FakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if fc.PrunedHistory && blockNumber != nil {
		return nil, fmt.Errorf("missing trie node for block %s", blockNumber)
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, nil
	}
	ep, ok := fc.EntryPoints[*msg.To]
	if !ok {
		return nil, nil
	}

	method, err := aa.EntryPointABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, &RevertError{}
	}
	if failure, ok := fc.FailCalls[method.Name]; ok {
		return nil, failure
	}

	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, &RevertError{}
	}

	switch method.Name {
	case aa.MethodGetNonce:
		return method.Outputs.Pack(new(big.Int).Set(ep.nonce(args[0].(common.Address))))
	case aa.MethodBalanceOf:
		return method.Outputs.Pack(new(big.Int).Set(ep.deposit(args[0].(common.Address))))
	case aa.MethodGetUserOpHash:
		op := *abi.ConvertType(args[0], new(userop.PackedUserOperation)).(*userop.PackedUserOperation)
		return method.Outputs.Pack([32]byte(fc.UserOpHash(ep.Address, op)))
	case aa.MethodHandleOps:
		ops := *abi.ConvertType(args[0], new([]userop.PackedUserOperation)).(*[]userop.PackedUserOperation)
		if revert := fc.validateOps(ep, ops); revert != nil {
			return nil, &RevertError{Data: revert}
		}
		return []byte{}, nil
	}
	return []byte{}, nil
}
