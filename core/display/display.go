// Package display renders console output: status messages, chain and
// account snapshots, receipts, decoded logs and help topics.
package display

import (
	"fmt"
	"io"
	"math/big"
	"strings"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/common-nighthawk/go-figure"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
	"github.com/mitchellh/mapstructure"

	"github.com/AvaProtocol/eip4337-console/core/accounts"
	"github.com/AvaProtocol/eip4337-console/core/chainio/aa"
	"github.com/AvaProtocol/eip4337-console/core/contracts"
	"github.com/AvaProtocol/eip4337-console/core/session"
	"github.com/AvaProtocol/eip4337-console/pkg/byte4"
	"github.com/AvaProtocol/eip4337-console/pkg/erc4337/userop"
	"github.com/AvaProtocol/eip4337-console/pkg/units"
)

const (
	AppName = "EIP-4337"

	InitWarning = "Contracts and accounts must be initialized before running this tool.\n" +
		"Run the setup command to initialize them."
)

type Printer struct {
	out     io.Writer
	verbose bool

	success *color.Color
	warning *color.Color
	failure *color.Color
	heading *color.Color
	faint   *color.Color

	dumper *pp.PrettyPrinter
}

func New(out io.Writer, verbose bool) *Printer {
	dumper := pp.New()
	dumper.SetOutput(out)
	dumper.SetColoringEnabled(!color.NoColor)

	return &Printer{
		out:     out,
		verbose: verbose,
		success: color.New(color.FgGreen),
		warning: color.New(color.FgYellow),
		failure: color.New(color.FgRed),
		heading: color.New(color.FgCyan, color.Bold),
		faint:   color.New(color.Faint),
		dumper:  dumper,
	}
}

func (p *Printer) Verbose() bool {
	return p.verbose
}

func (p *Printer) Success(format string, args ...interface{}) {
	p.success.Fprintf(p.out, "✅ "+format+"\n", args...)
}

func (p *Printer) Warning(format string, args ...interface{}) {
	p.warning.Fprintf(p.out, "⚠️  "+format+"\n", args...)
}

func (p *Printer) Error(format string, args ...interface{}) {
	p.failure.Fprintf(p.out, "❌ "+format+"\n", args...)
}

func (p *Printer) Heading(title string) {
	p.heading.Fprintf(p.out, "\n=== %s ===\n", title)
}

func (p *Printer) Println(args ...interface{}) {
	fmt.Fprintln(p.out, args...)
}

// Debug prints only in verbose mode.
func (p *Printer) Debug(format string, args ...interface{}) {
	if !p.verbose {
		return
	}
	p.faint.Fprintf(p.out, format+"\n", args...)
}

// Dump pretty prints v in verbose mode.
func (p *Printer) Dump(v interface{}) {
	if !p.verbose {
		return
	}
	p.dumper.Println(v)
}

func (p *Printer) Welcome() {
	fig := figure.NewFigure(AppName, "slant", true)
	fmt.Fprintln(p.out, fig.String())
	p.heading.Fprintln(p.out, "=== 🧰 Welcome to the EIP-4337 Tool ===")
	fmt.Fprintln(p.out, "Walk through Account Abstraction on a local node: create accounts,")
	fmt.Fprintln(p.out, "deploy an EntryPoint and a SimpleAccount, then send a UserOperation.")
}

func (p *Printer) InitWarning() {
	p.Warning(InitWarning)
}

func (p *Printer) table() *tabby.Tabby {
	return tabby.NewCustom(tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0))
}

func (p *Printer) ChainState(s *session.ChainStatus) {
	p.Heading("Chain state")
	t := p.table()
	t.AddLine("Block number", s.BlockNumber)
	t.AddLine("Chain ID", bigString(s.ChainID))
	t.AddLine("Gas price", gwei(s.GasPrice))
	t.AddLine("Max priority fee", gwei(s.MaxPriorityFee))
	if s.DefaultAccount != nil {
		t.AddLine("Default account", s.DefaultAccount.Hex())
	} else {
		t.AddLine("Default account", "not initialized")
	}
	t.AddLine("Syncing", s.Syncing)
	t.Print()
}

// ContractState prints every contract with its balance and reports whether
// any contract is missing.
func (p *Printer) ContractState(s *session.ContractsStatus) bool {
	p.Heading("Contracts")
	if len(s.Contracts) == 0 || !anyAddress(s.Contracts) {
		p.Error("No contracts are available!")
		return true
	}

	hasErrors := false
	t := p.table()
	t.AddHeader("CONTRACT", "ADDRESS", "BALANCE")
	for _, c := range s.Contracts {
		if c.Address == nil {
			t.AddLine(c.Label, "not deployed", "-")
			hasErrors = true
			continue
		}
		t.AddLine(c.Label, c.Address.Hex(), ether(c.Wei))
	}
	t.Print()

	if s.WalletDeposit != nil {
		fmt.Fprintf(p.out, "Gas balance (via EntryPoint): %s\n", ether(s.WalletDeposit))
	}
	return hasErrors
}

// AccountsState prints the default account and the role accounts and
// reports whether any of them is missing.
func (p *Printer) AccountsState(s *session.AccountsStatus) bool {
	p.Heading("Accounts")
	hasErrors := false

	if s.Default == nil {
		p.Error("Default account not initialized!")
		hasErrors = true
	} else {
		p.account(*s.Default)
	}

	for _, b := range s.Roles {
		if b.Address == nil {
			p.Error("Account %s not initialized", b.Label)
			hasErrors = true
			continue
		}
		p.account(b)
	}
	return hasErrors
}

func (p *Printer) account(b session.Balance) {
	fmt.Fprintf(p.out, "%s account: %s with balance %s\n", capitalize(b.Label), b.Address.Hex(), ether(b.Wei))
}

func (p *Printer) NodeAccounts(list []session.Balance) {
	p.Heading("Node accounts")
	if len(list) == 0 {
		p.Warning("The node manages no accounts")
		return
	}
	t := p.table()
	t.AddHeader("ACCOUNT", "ADDRESS", "BALANCE")
	for i, b := range list {
		t.AddLine(fmt.Sprintf("account[%d]", i), b.Address.Hex(), ether(b.Wei))
	}
	t.Print()
}

// Amounts lists funding amounts in role order.
func (p *Printer) Amounts(amounts accounts.Amounts) {
	t := p.table()
	for _, role := range accounts.Roles {
		if v, ok := amounts[role]; ok {
			t.AddLine(capitalize(string(role)), v.String()+" ETH")
		}
	}
	t.AddLine("Total", amounts.Total().String()+" ETH")
	t.Print()
}

func (p *Printer) ContractsSetup(setup *session.ContractsSetup) {
	if setup == nil {
		return
	}
	if setup.EntryPoint != nil {
		p.Success("EntryPoint deployed at %s", setup.EntryPoint.Address.Hex())
	}
	if setup.SimpleAccount != nil {
		p.Success("SimpleAccount deployed at %s", setup.SimpleAccount.Address.Hex())
	}
}

func (p *Printer) Receipt(r *types.Receipt) {
	if r == nil {
		return
	}
	p.Heading("Receipt")
	t := p.table()
	if r.Status == types.ReceiptStatusSuccessful {
		t.AddLine("Status", "Success")
	} else {
		t.AddLine("Status", "Failed")
	}
	t.AddLine("Transaction", r.TxHash.Hex())
	t.AddLine("Block Number", bigString(r.BlockNumber))
	t.AddLine("Gas Used", r.GasUsed)
	t.Print()

	p.Dump(r)
}

func (p *Printer) Logs(logs []contracts.TransactionLog) {
	if len(logs) == 0 {
		p.Warning("No logs were emitted")
		return
	}
	p.Heading("Logs")
	for _, l := range logs {
		fmt.Fprintf(p.out, "%s emitted log: %s\n", sourceLabel(l.Source), l.Event)
		for _, name := range l.ArgNames {
			fmt.Fprintf(p.out, "    %s: %s\n", name, FormatValue(l.Args[name]))
		}
	}
}

type userOperationEvent struct {
	UserOpHash    [32]byte       `mapstructure:"userOpHash"`
	Sender        common.Address `mapstructure:"sender"`
	Paymaster     common.Address `mapstructure:"paymaster"`
	Nonce         *big.Int       `mapstructure:"nonce"`
	Success       bool           `mapstructure:"success"`
	ActualGasCost *big.Int       `mapstructure:"actualGasCost"`
	ActualGasUsed *big.Int       `mapstructure:"actualGasUsed"`
}

// OperationSummary prints the outcome carried by the UserOperationEvent
// log, if present.
func (p *Printer) OperationSummary(logs []contracts.TransactionLog) bool {
	for _, l := range logs {
		if l.Event != aa.EventUserOperation {
			continue
		}
		var ev userOperationEvent
		if err := mapstructure.Decode(l.Args, &ev); err != nil {
			p.Debug("could not decode %s: %v", l.Event, err)
			return false
		}
		if ev.Success {
			p.Success("UserOperation %s executed", hexutil.Encode(ev.UserOpHash[:]))
		} else {
			p.Error("UserOperation %s reverted inside the wallet", hexutil.Encode(ev.UserOpHash[:]))
		}
		t := p.table()
		t.AddLine("Sender", ev.Sender.Hex())
		t.AddLine("Nonce", bigString(ev.Nonce))
		t.AddLine("Gas cost", ether(ev.ActualGasCost))
		t.AddLine("Gas used", bigString(ev.ActualGasUsed))
		t.Print()
		return true
	}
	return false
}

func (p *Printer) UserOperation(op *userop.UserOperation) {
	if op == nil {
		return
	}
	p.Heading("UserOperation")
	t := p.table()
	for _, f := range op.Fields() {
		t.AddLine(f[0], f[1])
	}
	if call, err := byte4.DescribeCall(aa.SimpleAccountABI, op.CallData); err == nil {
		t.AddLine("wallet call", call)
	}
	t.Print()
}

// Outcome prints everything known about an executed operation.
func (p *Printer) Outcome(o *session.OperationOutcome) {
	if o == nil {
		return
	}
	if o.Result != nil {
		if o.Result.Operation != nil {
			p.Debug("operation %s", o.Result.Operation.ID)
			p.UserOperation(o.Result.Operation.UserOp)
		}
		if o.Result.UserOpHash != (common.Hash{}) {
			fmt.Fprintf(p.out, "UserOperation hash: %s\n", o.Result.UserOpHash.Hex())
		}
		p.Receipt(o.Result.Receipt)
	}
	if o.Diagnosis != nil {
		p.Diagnosis(o.Diagnosis)
		return
	}
	if len(o.Logs) > 0 {
		p.Logs(o.Logs)
		p.OperationSummary(o.Logs)
	}
}

// Diagnosis prints the logs of a failed transaction, or its revert reason
// when it emitted none.
func (p *Printer) Diagnosis(d *session.Diagnosis) {
	if d == nil {
		return
	}
	if len(d.Logs) > 0 {
		p.Logs(d.Logs)
		return
	}
	if d.ReasonErr != nil {
		p.Error("Could not determine the revert reason: %v", d.ReasonErr)
		return
	}
	p.Error("Transaction reverted: %s", d.Reason)
}

func (p *Printer) Help(t Topic) {
	p.Heading(t.Title)
	for _, line := range t.Lines {
		fmt.Fprintln(p.out, line)
	}
	fmt.Fprintf(p.out, "\nMore information: %s\n", eipURL)
}

// FormatValue renders a decoded event argument.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case common.Address:
		return val.Hex()
	case common.Hash:
		return val.Hex()
	case [32]byte:
		return hexutil.Encode(val[:])
	case []byte:
		return hexutil.Encode(val)
	case *big.Int:
		return bigString(val)
	default:
		return fmt.Sprint(val)
	}
}

func sourceLabel(source string) string {
	if source == string(contracts.SimpleAccount) {
		return contracts.SimpleAccount.Label()
	}
	return source
}

func anyAddress(list []session.Balance) bool {
	for _, b := range list {
		if b.Address != nil {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func bigString(v *big.Int) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

func ether(wei *big.Int) string {
	if wei == nil {
		return "-"
	}
	return units.FormatEther(wei) + " ETH"
}

func gwei(wei *big.Int) string {
	if wei == nil {
		return "-"
	}
	return units.FormatGwei(wei) + " gwei"
}
