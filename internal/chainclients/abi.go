package chainclients

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs for the fixed on-chain surface spec.md §6 names: the
// cross-chain router/bridge, the yield vault, the collateral health
// checker, the per-protocol rebalance executor, and standard ERC20.
// Parsed once at package init, following the teacher pack's merge.go
// pattern of package-level abi.ABI values built from inline JSON rather
// than generated bindings, since no contract source is vendored here.
var (
	bridgeABI   abi.ABI
	vaultABI    abi.ABI
	healthABI   abi.ABI
	executorABI abi.ABI
	erc20ABI    abi.ABI
)

func mustParseABI(json string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		panic("chainclients: abi parse: " + err.Error())
	}
	return parsed
}

func init() {
	bridgeABI = mustParseABI(`[
		{"name":"estimateFee","type":"function","stateMutability":"view",
		 "inputs":[{"name":"destChainSelector","type":"uint64"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"gasLimit","type":"uint256"}],
		 "outputs":[{"name":"feeNative","type":"uint256"}]},
		{"name":"sendCrossChainRebalance","type":"function","stateMutability":"payable",
		 "inputs":[{"name":"destChainSelector","type":"uint64"},{"name":"targetPool","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"gasLimit","type":"uint256"}],
		 "outputs":[{"name":"messageId","type":"bytes32"}]},
		{"name":"MessageSent","type":"event","anonymous":false,
		 "inputs":[{"name":"messageId","type":"bytes32","indexed":true},{"name":"destChainSelector","type":"uint64","indexed":false}]},
		{"name":"ccipReceive","type":"event","anonymous":false,
		 "inputs":[{"name":"messageId","type":"bytes32","indexed":true},{"name":"success","type":"bool","indexed":false},{"name":"receipt","type":"bytes","indexed":false}]}
	]`)

	vaultABI = mustParseABI(`[
		{"name":"deposit","type":"function","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"withdraw","type":"function","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"checkUpkeep","type":"function","stateMutability":"view","inputs":[{"name":"checkData","type":"bytes"}],"outputs":[{"name":"upkeepNeeded","type":"bool"},{"name":"performData","type":"bytes"}]},
		{"name":"performUpkeep","type":"function","inputs":[{"name":"performData","type":"bytes"}],"outputs":[]},
		{"name":"getUserDeposit","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"token","type":"address"}],"outputs":[{"name":"amount","type":"uint256"}]},
		{"name":"getHealthScore","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"scoreBps","type":"uint256"}]}
	]`)

	healthABI = mustParseABI(`[
		{"name":"verifyCollateral","type":"function","stateMutability":"view","inputs":[{"name":"pool","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"ok","type":"bool"}]},
		{"name":"getCollateralRatio","type":"function","stateMutability":"view","inputs":[{"name":"pool","type":"address"}],"outputs":[{"name":"ratioBps","type":"uint256"}]}
	]`)

	executorABI = mustParseABI(`[
		{"name":"executeRebalance","type":"function","inputs":[{"name":"sourcePool","type":"address"},{"name":"targetPool","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"estimateRebalanceCost","type":"function","stateMutability":"view","inputs":[{"name":"sourcePool","type":"address"},{"name":"targetPool","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"gasEstimate","type":"uint256"}]},
		{"name":"supportedProtocols","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"names","type":"string[]"}]}
	]`)

	erc20ABI = mustParseABI(`[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
	]`)
}
