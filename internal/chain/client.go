package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrConnection RPC节点不可达，调用方应退避重试而不是退出
var ErrConnection = errors.New("chain connection unavailable")

// 捐赠合约ABI定义（事件 + 提现入口）
const contractABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": true, "name": "donor", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"},
			{"indexed": false, "name": "badgeLevel", "type": "uint8"}
		],
		"name": "DonationMade",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "owner", "type": "address"},
			{"indexed": true, "name": "tokenId", "type": "uint256"},
			{"indexed": false, "name": "level", "type": "uint8"},
			{"indexed": false, "name": "donationAmount", "type": "uint256"},
			{"indexed": false, "name": "metadataURI", "type": "string"}
		],
		"name": "TokenMinted",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "owner", "type": "address"},
			{"indexed": false, "name": "burnedTokenIds", "type": "uint256[]"},
			{"indexed": false, "name": "newTokenId", "type": "uint256"},
			{"indexed": false, "name": "newLevel", "type": "uint8"}
		],
		"name": "TokenConverted",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": true, "name": "creator", "type": "address"},
			{"indexed": false, "name": "fundingGoal", "type": "uint256"},
			{"indexed": false, "name": "deadline", "type": "uint256"}
		],
		"name": "ProjectCreated",
		"type": "event"
	},
	{
		"inputs": [{"name": "projectId", "type": "uint256"}],
		"name": "withdraw",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// Client 链适配器
// 只负责连接管理和日志解码，不做任何业务逻辑；
// 显式构造后注入给索引器，不使用进程级单例
type Client struct {
	client       *ethclient.Client
	contractAddr common.Address
	contractABI  abi.ABI
	privateKey   *ecdsa.PrivateKey // 提现用，可为空
	chainId      int64
	startBlock   uint64

	mu         sync.Mutex
	blockTimes map[uint64]time.Time // 区块时间戳缓存
}

func Init(cfg config.ChainConfig) (*Client, error) {
	// 连接以太坊客户端
	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, cfg.RpcUrl, err)
	}

	// 解析ABI
	parsedABI, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	c := &Client{
		client:       client,
		contractAddr: common.HexToAddress(cfg.ContractAddr),
		contractABI:  parsedABI,
		chainId:      cfg.ChainId,
		startBlock:   cfg.StartBlock,
		blockTimes:   make(map[uint64]time.Time),
	}

	// 解析提现私钥（未配置时跳过，只读部署）
	if cfg.PrivateKey != "" {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		c.privateKey = privateKey
	}

	return c, nil
}

// GetStartBlock 获取合约部署区块号
func (c *Client) GetStartBlock() uint64 {
	return c.startBlock
}

// GetCurrentBlockNumber 获取当前最新区块号
func (c *Client) GetCurrentBlockNumber(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return header.Number.Uint64(), nil
}

// FilterEvents 拉取指定区块范围内的合约事件并解码
// 返回顺序与链上日志顺序一致
func (c *Client) FilterEvents(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contractAddr},
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: filter logs %d-%d: %v", ErrConnection, fromBlock, toBlock, err)
	}

	events := make([]Event, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			// 重组移除的日志不投递，事件会在新的规范链上重新出现
			continue
		}

		ts, err := c.blockTime(ctx, l.BlockNumber)
		if err != nil {
			return nil, err
		}

		event, err := c.ParseLog(l, ts)
		if err != nil {
			if errors.Is(err, errUnknownEvent) {
				continue
			}
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

var errUnknownEvent = errors.New("unknown event signature")

// ParseLog 将原始日志解码为类型化事件
func (c *Client) ParseLog(l types.Log, ts time.Time) (Event, error) {
	if len(l.Topics) == 0 {
		return nil, errUnknownEvent
	}

	ref := Ref{
		TxHash:      l.TxHash.Hex(),
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
		Timestamp:   ts,
	}

	switch l.Topics[0] {
	case c.contractABI.Events["DonationMade"].ID:
		return c.parseDonationMade(l, ref)
	case c.contractABI.Events["TokenMinted"].ID:
		return c.parseTokenMinted(l, ref)
	case c.contractABI.Events["TokenConverted"].ID:
		return c.parseTokenConverted(l, ref)
	case c.contractABI.Events["ProjectCreated"].ID:
		return c.parseProjectCreated(l, ref)
	default:
		return nil, errUnknownEvent
	}
}

// parseDonationMade 解析捐赠事件
func (c *Client) parseDonationMade(l types.Log, ref Ref) (Event, error) {
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("invalid DonationMade event: insufficient topics")
	}

	values, err := c.contractABI.Unpack("DonationMade", l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack DonationMade data: %w", err)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("invalid DonationMade event: insufficient data fields")
	}

	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid DonationMade amount type %T", values[0])
	}
	badgeLevel, ok := values[1].(uint8)
	if !ok {
		return nil, fmt.Errorf("invalid DonationMade badgeLevel type %T", values[1])
	}

	return DonationMade{
		Ref:        ref,
		ProjectID:  new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(),
		Donor:      strings.ToLower(common.BytesToAddress(l.Topics[2].Bytes()).Hex()),
		Amount:     amount,
		BadgeLevel: badgeLevel,
	}, nil
}

// parseTokenMinted 解析铸造事件
func (c *Client) parseTokenMinted(l types.Log, ref Ref) (Event, error) {
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("invalid TokenMinted event: insufficient topics")
	}

	values, err := c.contractABI.Unpack("TokenMinted", l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack TokenMinted data: %w", err)
	}
	if len(values) < 3 {
		return nil, fmt.Errorf("invalid TokenMinted event: insufficient data fields")
	}

	level, ok := values[0].(uint8)
	if !ok {
		return nil, fmt.Errorf("invalid TokenMinted level type %T", values[0])
	}
	donationAmount, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid TokenMinted donationAmount type %T", values[1])
	}
	metadataURI, ok := values[2].(string)
	if !ok {
		return nil, fmt.Errorf("invalid TokenMinted metadataURI type %T", values[2])
	}

	return TokenMinted{
		Ref:            ref,
		Owner:          strings.ToLower(common.BytesToAddress(l.Topics[1].Bytes()).Hex()),
		TokenID:        new(big.Int).SetBytes(l.Topics[2].Bytes()).Uint64(),
		Level:          level,
		DonationAmount: donationAmount,
		MetadataURI:    metadataURI,
	}, nil
}

// parseTokenConverted 解析合成事件
func (c *Client) parseTokenConverted(l types.Log, ref Ref) (Event, error) {
	if len(l.Topics) < 2 {
		return nil, fmt.Errorf("invalid TokenConverted event: insufficient topics")
	}

	values, err := c.contractABI.Unpack("TokenConverted", l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack TokenConverted data: %w", err)
	}
	if len(values) < 3 {
		return nil, fmt.Errorf("invalid TokenConverted event: insufficient data fields")
	}

	rawIds, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid TokenConverted burnedTokenIds type %T", values[0])
	}
	newTokenID, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid TokenConverted newTokenId type %T", values[1])
	}
	newLevel, ok := values[2].(uint8)
	if !ok {
		return nil, fmt.Errorf("invalid TokenConverted newLevel type %T", values[2])
	}

	burnedIds := make([]uint64, len(rawIds))
	for i, id := range rawIds {
		burnedIds[i] = id.Uint64()
	}

	return TokenConverted{
		Ref:            ref,
		Owner:          strings.ToLower(common.BytesToAddress(l.Topics[1].Bytes()).Hex()),
		BurnedTokenIDs: burnedIds,
		NewTokenID:     newTokenID.Uint64(),
		NewLevel:       newLevel,
	}, nil
}

// parseProjectCreated 解析项目创建事件
func (c *Client) parseProjectCreated(l types.Log, ref Ref) (Event, error) {
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("invalid ProjectCreated event: insufficient topics")
	}

	values, err := c.contractABI.Unpack("ProjectCreated", l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack ProjectCreated data: %w", err)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("invalid ProjectCreated event: insufficient data fields")
	}

	fundingGoal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid ProjectCreated fundingGoal type %T", values[0])
	}
	rawDeadline, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid ProjectCreated deadline type %T", values[1])
	}

	var deadline time.Time
	if rawDeadline.Sign() > 0 {
		deadline = time.Unix(rawDeadline.Int64(), 0).UTC()
	}

	return ProjectCreated{
		Ref:         ref,
		ProjectID:   new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(),
		Creator:     strings.ToLower(common.BytesToAddress(l.Topics[2].Bytes()).Hex()),
		FundingGoal: fundingGoal,
		Deadline:    deadline,
	}, nil
}

// blockTime 获取区块时间戳，带缓存
func (c *Client) blockTime(ctx context.Context, blockNum uint64) (time.Time, error) {
	c.mu.Lock()
	if ts, ok := c.blockTimes[blockNum]; ok {
		c.mu.Unlock()
		return ts, nil
	}
	c.mu.Unlock()

	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNum))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: header %d: %v", ErrConnection, blockNum, err)
	}
	ts := time.Unix(int64(header.Time), 0).UTC()

	c.mu.Lock()
	if len(c.blockTimes) > 4096 {
		c.blockTimes = make(map[uint64]time.Time)
	}
	c.blockTimes[blockNum] = ts
	c.mu.Unlock()

	return ts, nil
}

// Withdraw 提交项目提现交易
// 这是本服务唯一的写链操作，授权校验在上游完成
func (c *Client) Withdraw(ctx context.Context, projectId uint64) (string, error) {
	if c.privateKey == nil {
		return "", errors.New("withdraw key not configured")
	}

	auth, err := bind.NewKeyedTransactorWithChainID(c.privateKey, big.NewInt(c.chainId))
	if err != nil {
		return "", fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx

	contract := bind.NewBoundContract(c.contractAddr, c.contractABI, c.client, c.client, c.client)
	tx, err := contract.Transact(auth, "withdraw", new(big.Int).SetUint64(projectId))
	if err != nil {
		return "", fmt.Errorf("%w: withdraw: %v", ErrConnection, err)
	}

	return tx.Hash().Hex(), nil
}
