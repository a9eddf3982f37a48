package display

const eipURL = "https://eips.ethereum.org/EIPS/eip-4337"

// Topic is one entry of the help menu.
type Topic struct {
	Key   string
	Title string
	Lines []string
}

// HelpTopics lists the help menu in display order.
var HelpTopics = []Topic{
	{
		Key:   "tool",
		Title: "What is this tool?",
		Lines: []string{
			"An interactive console for learning the EIP-4337 Account Abstraction flow.",
			"It creates funded test accounts, deploys an EntryPoint and a SimpleAccount wallet on a",
			"local development node, and sends a UserOperation through the full pipeline:",
			"build, hash via the EntryPoint, sign, submit with handleOps, decode the logs.",
		},
	},
	{
		Key:   "eip4337",
		Title: "What is EIP-4337?",
		Lines: []string{
			"EIP-4337 adds account abstraction to Ethereum without changing the protocol.",
			"Users sign UserOperations instead of transactions. Bundlers collect them and submit",
			"them to a singleton EntryPoint contract, which validates and executes each one",
			"against the user's smart contract wallet.",
		},
	},
	{
		Key:   "account-abstraction",
		Title: "What is account abstraction?",
		Lines: []string{
			"Account abstraction lets a smart contract act as a user's primary account.",
			"The wallet contract decides what a valid signature is and how fees are paid,",
			"so features like social recovery, batching or sponsored gas need no protocol change.",
		},
	},
	{
		Key:   "accounts",
		Title: "What accounts are needed?",
		Lines: []string{
			"owner       : externally owned account that controls the SimpleAccount and deploys the contracts.",
			"bundler     : submits handleOps transactions to the EntryPoint and pays their gas.",
			"beneficiary : receives the gas refund the EntryPoint pays out for each operation.",
			"",
			"All three are generated in memory and funded from the node's default account.",
			"The funding amounts can be changed before the accounts are created.",
		},
	},
	{
		Key:   "contracts",
		Title: "What contracts are used?",
		Lines: []string{
			"EntryPoint    : receives UserOperations, validates them against the wallet and executes them.",
			"SimpleAccount : a minimal smart contract wallet owned by the owner account.",
		},
	},
	{
		Key:   "userop",
		Title: "What is a UserOperation?",
		Lines: []string{
			"A UserOperation describes what a smart contract wallet should do: the sender wallet,",
			"its nonce, the call data for the wallet, gas limits and fee caps, and a signature.",
			"The EntryPoint v0.7 receives it in packed form, with the two gas limits and the two",
			"fee caps each combined into one 32 byte word.",
		},
	},
	{
		Key:   "entrypoint",
		Title: "What is an EntryPoint?",
		Lines: []string{
			"The EntryPoint is the singleton contract that bundlers call with handleOps.",
			"It computes the UserOperation hash, asks the wallet to validate the signature,",
			"charges the wallet's deposit for gas and then runs the call.",
		},
	},
	{
		Key:   "simpleaccount",
		Title: "What is a SimpleAccount?",
		Lines: []string{
			"The SimpleAccount is the smart contract wallet used here. It accepts an operation",
			"when the signature over the UserOperation hash recovers to its owner, and only",
			"the EntryPoint may ask it to execute calls.",
		},
	},
	{
		Key:   "bundler",
		Title: "What is a bundler?",
		Lines: []string{
			"A bundler packs one or more UserOperations into a single handleOps transaction.",
			"It pays the transaction gas up front and is repaid by the EntryPoint.",
			"In this console the bundler is an in-process signer using the bundler account.",
		},
	},
	{
		Key:   "beneficiary",
		Title: "What is a beneficiary?",
		Lines: []string{
			"The beneficiary is the address handleOps pays the collected gas fees to.",
			"Bundlers normally set it to themselves; here it is a separate account so the",
			"payment is visible.",
		},
	},
	{
		Key:   "relayer",
		Title: "What is a relayer?",
		Lines: []string{
			"A relayer submits transactions on behalf of users who do not hold ether.",
			"In EIP-4337 the bundler takes this role for UserOperations.",
		},
	},
	{
		Key:   "miner",
		Title: "What is a miner?",
		Lines: []string{
			"The miner, or block builder, includes the bundler's handleOps transaction in a block.",
			"On a local development node every transaction is mined immediately.",
		},
	},
}

// HelpTopic finds a topic by key.
func HelpTopic(key string) (Topic, bool) {
	for _, t := range HelpTopics {
		if t.Key == key {
			return t, true
		}
	}
	return Topic{}, false
}
