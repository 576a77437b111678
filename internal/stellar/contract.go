package stellar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

// escrowSaltPrefix 托管合约盐前缀
//
// 盐由发票ID确定性派生，同一发票重复部署得到同一合约地址。
const escrowSaltPrefix = "lancepay-escrow-v1:"

// 托管调用的静态资源上限
//
// 部署环境的预检服务不在本仓库内，这里取宽松静态值，
// 覆盖 init/release/refund/dispute/adjudicate 的实测峰值。
const (
	sorobanInstructions = 4_000_000
	sorobanReadBytes    = 80_000
	sorobanWriteBytes   = 20_000
	sorobanResourceFee  = 2_000_000
)

// EscrowInit 托管合约初始化参数
type EscrowInit struct {
	ClientAddress     string
	FreelancerAddress string
	ArbiterAddress    string
	AmountStroops     int64
}

// EscrowSalt 由发票ID派生部署盐
func EscrowSalt(invoiceId int64) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s%d", escrowSaltPrefix, invoiceId)))
}

// EscrowContractID 计算发票对应的托管合约地址（C 开头）
func (c *Client) EscrowContractID(invoiceId int64) (string, error) {
	preimage, err := c.escrowIdPreimage(invoiceId)
	if err != nil {
		return "", err
	}
	wrapped := xdr.HashIdPreimage{
		Type:       xdr.EnvelopeTypeEnvelopeTypeContractId,
		ContractId: &xdr.HashIdPreimageContractId{
			NetworkId:          xdr.Hash(network.ID(c.networkPassphrase)),
			ContractIdPreimage: preimage,
		},
	}
	raw, err := wrapped.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to marshal contract id preimage: %w", err)
	}
	hash := sha256.Sum256(raw)
	return strkey.Encode(strkey.VersionByteContract, hash[:])
}

// escrowIdPreimage 资金账户地址 + 发票盐构成的合约ID原像
func (c *Client) escrowIdPreimage(invoiceId int64) (xdr.ContractIdPreimage, error) {
	deployer, err := xdr.AddressToAccountId(c.fundingKP.Address())
	if err != nil {
		return xdr.ContractIdPreimage{}, fmt.Errorf("failed to parse deployer address: %w", err)
	}
	salt := EscrowSalt(invoiceId)
	return xdr.ContractIdPreimage{
		Type: xdr.ContractIdPreimageTypeContractIdPreimageFromAddress,
		FromAddress: &xdr.ContractIdPreimageFromAddress{
			Address: xdr.ScAddress{
				Type:      xdr.ScAddressTypeScAddressTypeAccount,
				AccountId: &deployer,
			},
			Salt: xdr.Uint256(salt),
		},
	}, nil
}

// assetContractAddress 结算资产的 SAC 合约地址
func (c *Client) assetContractAddress() (xdr.ScAddress, error) {
	xdrAsset, err := c.usdc.ToXDR()
	if err != nil {
		return xdr.ScAddress{}, fmt.Errorf("failed to convert asset: %w", err)
	}
	wrapped := xdr.HashIdPreimage{
		Type: xdr.EnvelopeTypeEnvelopeTypeContractId,
		ContractId: &xdr.HashIdPreimageContractId{
			NetworkId: xdr.Hash(network.ID(c.networkPassphrase)),
			ContractIdPreimage: xdr.ContractIdPreimage{
				Type:      xdr.ContractIdPreimageTypeContractIdPreimageFromAsset,
				FromAsset: &xdrAsset,
			},
		},
	}
	raw, err := wrapped.MarshalBinary()
	if err != nil {
		return xdr.ScAddress{}, fmt.Errorf("failed to marshal asset contract preimage: %w", err)
	}
	sum := sha256.Sum256(raw)
	contractHash := xdr.Hash(sum)
	return xdr.ScAddress{
		Type:       xdr.ScAddressTypeScAddressTypeContract,
		ContractId: &contractHash,
	}, nil
}

// contractScAddress 解析 C 开头的合约地址
func contractScAddress(contractID string) (xdr.ScAddress, error) {
	raw, err := strkey.Decode(strkey.VersionByteContract, contractID)
	if err != nil {
		return xdr.ScAddress{}, &Error{Class: ClassValidation, Reason: "invalid_contract_id", cause: err}
	}
	var contractHash xdr.Hash
	copy(contractHash[:], raw)
	return xdr.ScAddress{
		Type:       xdr.ScAddressTypeScAddressTypeContract,
		ContractId: &contractHash,
	}, nil
}

// BuildEscrowDeploy 构建托管合约部署交易
func (c *Client) BuildEscrowDeploy(ctx context.Context, invoiceId int64) (*BuiltTx, error) {
	wasmHash, err := c.wasmHash()
	if err != nil {
		return nil, err
	}
	preimage, err := c.escrowIdPreimage(invoiceId)
	if err != nil {
		return nil, err
	}

	createArgs := xdr.CreateContractArgs{
		ContractIdPreimage: preimage,
		Executable: xdr.ContractExecutable{
			Type:     xdr.ContractExecutableTypeContractExecutableWasm,
			WasmHash: &wasmHash,
		},
	}

	contractID, err := c.EscrowContractID(invoiceId)
	if err != nil {
		return nil, err
	}
	contractAddr, err := contractScAddress(contractID)
	if err != nil {
		return nil, err
	}

	op := &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type:           xdr.HostFunctionTypeHostFunctionTypeCreateContract,
			CreateContract: &createArgs,
		},
		Auth: []xdr.SorobanAuthorizationEntry{{
			Credentials: xdr.SorobanCredentials{
				Type: xdr.SorobanCredentialsTypeSorobanCredentialsSourceAccount,
			},
			RootInvocation: xdr.SorobanAuthorizedInvocation{
				Function: xdr.SorobanAuthorizedFunction{
					Type:                 xdr.SorobanAuthorizedFunctionTypeSorobanAuthorizedFunctionTypeCreateContractHostFn,
					CreateContractHostFn: &createArgs,
				},
			},
		}},
		SourceAccount: c.fundingKP.Address(),
		Ext: sorobanData(
			[]xdr.LedgerKey{contractCodeKey(wasmHash)},
			[]xdr.LedgerKey{contractInstanceKey(contractAddr)},
		),
	}
	return c.buildAndSign(ctx, c.fundingKP.Address(), nil, []txnbuild.Operation{op}, c.fundingKP)
}

// BuildEscrowInit 构建托管合约初始化调用
func (c *Client) BuildEscrowInit(ctx context.Context, contractID string, init EscrowInit) (*BuiltTx, error) {
	if init.AmountStroops <= 0 {
		return nil, &Error{Class: ClassValidation, Reason: "non_positive_amount"}
	}
	client, err := scAccountVal(init.ClientAddress)
	if err != nil {
		return nil, err
	}
	freelancer, err := scAccountVal(init.FreelancerAddress)
	if err != nil {
		return nil, err
	}
	arbiter, err := scAccountVal(init.ArbiterAddress)
	if err != nil {
		return nil, err
	}
	tokenAddr, err := c.assetContractAddress()
	if err != nil {
		return nil, err
	}

	return c.buildEscrowInvoke(ctx, contractID, "init",
		client, freelancer, arbiter, scAddressVal(tokenAddr), scI128Val(init.AmountStroops))
}

// BuildEscrowRelease 构建放款调用
func (c *Client) BuildEscrowRelease(ctx context.Context, contractID string) (*BuiltTx, error) {
	return c.buildEscrowInvoke(ctx, contractID, "release")
}

// BuildEscrowRefund 构建退款调用
func (c *Client) BuildEscrowRefund(ctx context.Context, contractID string) (*BuiltTx, error) {
	return c.buildEscrowInvoke(ctx, contractID, "refund")
}

// BuildEscrowDispute 构建争议标记调用
func (c *Client) BuildEscrowDispute(ctx context.Context, contractID string) (*BuiltTx, error) {
	return c.buildEscrowInvoke(ctx, contractID, "dispute")
}

// BuildEscrowAdjudicate 构建仲裁裁决调用
//
// freelancerBps 是判给自由职业者的份额（基点），0 表示全额退款。
func (c *Client) BuildEscrowAdjudicate(ctx context.Context, contractID string, freelancerBps uint32) (*BuiltTx, error) {
	if freelancerBps > 10000 {
		return nil, &Error{Class: ClassValidation, Reason: "invalid_split_bps"}
	}
	return c.buildEscrowInvoke(ctx, contractID, "adjudicate", scU32Val(freelancerBps))
}

// buildEscrowInvoke 构建平台代理的合约调用
func (c *Client) buildEscrowInvoke(ctx context.Context, contractID, fn string, args ...xdr.ScVal) (*BuiltTx, error) {
	contractAddr, err := contractScAddress(contractID)
	if err != nil {
		return nil, err
	}
	wasmHash, err := c.wasmHash()
	if err != nil {
		return nil, err
	}

	invokeArgs := xdr.InvokeContractArgs{
		ContractAddress: contractAddr,
		FunctionName:    xdr.ScSymbol(fn),
		Args:            args,
	}

	op := &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type:           xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &invokeArgs,
		},
		Auth: []xdr.SorobanAuthorizationEntry{{
			Credentials: xdr.SorobanCredentials{
				Type: xdr.SorobanCredentialsTypeSorobanCredentialsSourceAccount,
			},
			RootInvocation: xdr.SorobanAuthorizedInvocation{
				Function: xdr.SorobanAuthorizedFunction{
					Type:       xdr.SorobanAuthorizedFunctionTypeSorobanAuthorizedFunctionTypeContractFn,
					ContractFn: &invokeArgs,
				},
			},
		}},
		SourceAccount: c.platformKP.Address(),
		Ext: sorobanData(
			[]xdr.LedgerKey{contractCodeKey(wasmHash)},
			[]xdr.LedgerKey{contractInstanceKey(contractAddr)},
		),
	}
	return c.buildAndSign(ctx, c.platformKP.Address(), nil, []txnbuild.Operation{op}, c.platformKP)
}

// wasmHash 解析配置的托管合约 wasm 哈希
func (c *Client) wasmHash() (xdr.Hash, error) {
	raw, err := hex.DecodeString(c.escrowWasmHash)
	if err != nil || len(raw) != 32 {
		return xdr.Hash{}, fmt.Errorf("invalid escrow wasm hash: %q", c.escrowWasmHash)
	}
	var h xdr.Hash
	copy(h[:], raw)
	return h, nil
}

// sorobanData 组装静态资源声明
func sorobanData(readOnly, readWrite []xdr.LedgerKey) xdr.TransactionExt {
	return xdr.TransactionExt{
		V: 1,
		SorobanData: &xdr.SorobanTransactionData{
			Ext: xdr.ExtensionPoint{V: 0},
			Resources: xdr.SorobanResources{
				Footprint: xdr.LedgerFootprint{
					ReadOnly:  readOnly,
					ReadWrite: readWrite,
				},
				Instructions: sorobanInstructions,
				ReadBytes:    sorobanReadBytes,
				WriteBytes:   sorobanWriteBytes,
			},
			ResourceFee: sorobanResourceFee,
		},
	}
}

// contractInstanceKey 合约实例的账本键
func contractInstanceKey(contract xdr.ScAddress) xdr.LedgerKey {
	return xdr.LedgerKey{
		Type: xdr.LedgerEntryTypeContractData,
		ContractData: &xdr.LedgerKeyContractData{
			Contract:   contract,
			Key:        xdr.ScVal{Type: xdr.ScValTypeScvLedgerKeyContractInstance},
			Durability: xdr.ContractDataDurabilityPersistent,
		},
	}
}

// contractCodeKey 合约代码的账本键
func contractCodeKey(wasmHash xdr.Hash) xdr.LedgerKey {
	return xdr.LedgerKey{
		Type:         xdr.LedgerEntryTypeContractCode,
		ContractCode: &xdr.LedgerKeyContractCode{Hash: wasmHash},
	}
}

// scAddressVal 合约地址转 ScVal
func scAddressVal(addr xdr.ScAddress) xdr.ScVal {
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &addr}
}

// scAccountVal 账户地址转 ScVal
func scAccountVal(address string) (xdr.ScVal, error) {
	accountId, err := xdr.AddressToAccountId(address)
	if err != nil {
		return xdr.ScVal{}, &Error{Class: ClassValidation, Reason: "invalid_account_address", cause: err}
	}
	addr := xdr.ScAddress{
		Type:      xdr.ScAddressTypeScAddressTypeAccount,
		AccountId: &accountId,
	}
	return scAddressVal(addr), nil
}

// scI128Val 非负金额转 i128 ScVal
func scI128Val(v int64) xdr.ScVal {
	parts := xdr.Int128Parts{Hi: 0, Lo: xdr.Uint64(v)}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &parts}
}

// scU32Val u32 转 ScVal
func scU32Val(v uint32) xdr.ScVal {
	u := xdr.Uint32(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvU32, U32: &u}
}
