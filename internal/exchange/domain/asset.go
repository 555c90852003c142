// Package domain 交易核心的领域模型：资产账本、订单、订单簿、撮合与清算。
package domain

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// AssetKind 资产种类
type AssetKind string

const (
	AssetUSD AssetKind = "USD"
	AssetBTC AssetKind = "BTC"
)

// DebtUserID 系统负债账户。用户入金建模为负债账户向用户的转账，
// 因此每种资产全局余额之和恒为零。
const DebtUserID int64 = 1

// TransferType 资产转移类型
type TransferType int

const (
	AvailableToAvailable TransferType = iota
	AvailableToFrozen
	FrozenToAvailable
)

func (t TransferType) String() string {
	switch t {
	case AvailableToAvailable:
		return "AVAILABLE_TO_AVAILABLE"
	case AvailableToFrozen:
		return "AVAILABLE_TO_FROZEN"
	case FrozenToAvailable:
		return "FROZEN_TO_AVAILABLE"
	}
	return fmt.Sprintf("TransferType(%d)", int(t))
}

// Asset 某用户在某资产上的余额。可用与冻结两个字段必须整体读写，
// 并发读取方只能通过 Balance 拿到一致的快照。
type Asset struct {
	mu        sync.Mutex
	available decimal.Decimal
	frozen    decimal.Decimal
}

// Balance 原子读取 (可用, 冻结)。
func (a *Asset) Balance() (available, frozen decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available, a.frozen
}

// Total 可用 + 冻结。
func (a *Asset) Total() decimal.Decimal {
	available, frozen := a.Balance()
	return available.Add(frozen)
}

// AssetService 内存资产账本，余额只能通过转移原语变更。
// 变更由事件循环单线程执行，并发读取方持有各余额记录自己的锁。
type AssetService struct {
	// userID -> *assetMap
	users sync.Map
}

type assetMap struct {
	// AssetKind -> *Asset
	assets sync.Map
}

func NewAssetService() *AssetService {
	return &AssetService{}
}

// GetAsset 返回用户在某资产上的余额记录，不存在时返回 nil。
func (s *AssetService) GetAsset(userID int64, kind AssetKind) *Asset {
	m, ok := s.users.Load(userID)
	if !ok {
		return nil
	}
	a, ok := m.(*assetMap).assets.Load(kind)
	if !ok {
		return nil
	}
	return a.(*Asset)
}

// GetAssets 返回用户全部余额记录。
func (s *AssetService) GetAssets(userID int64) map[AssetKind]*Asset {
	result := make(map[AssetKind]*Asset)
	m, ok := s.users.Load(userID)
	if !ok {
		return result
	}
	m.(*assetMap).assets.Range(func(k, v any) bool {
		result[k.(AssetKind)] = v.(*Asset)
		return true
	})
	return result
}

// Range 遍历全部 (用户, 资产, 余额记录)，供一致性校验与查询使用。
func (s *AssetService) Range(f func(userID int64, kind AssetKind, asset *Asset) bool) {
	s.users.Range(func(uk, uv any) bool {
		cont := true
		uv.(*assetMap).assets.Range(func(ak, av any) bool {
			cont = f(uk.(int64), ak.(AssetKind), av.(*Asset))
			return cont
		})
		return cont
	})
}

func (s *AssetService) initAsset(userID int64, kind AssetKind) *Asset {
	m, _ := s.users.LoadOrStore(userID, &assetMap{})
	a, _ := m.(*assetMap).assets.LoadOrStore(kind, &Asset{})
	return a.(*Asset)
}

// TryTransfer 按 kind 在两个账户之间转移 amount。amount 为零时直接成功；
// checkBalance 为 true 且源侧余额不足时返回 false 并保持状态不变。
// 负数金额属于调用方缺陷，直接 panic，由事件循环转为致命错误。
func (s *AssetService) TryTransfer(kind TransferType, fromUser, toUser int64, assetKind AssetKind, amount decimal.Decimal, checkBalance bool) bool {
	if amount.IsZero() {
		return true
	}
	if amount.IsNegative() {
		panic(fmt.Sprintf("negative transfer amount: %s", amount))
	}
	from := s.GetAsset(fromUser, assetKind)
	if from == nil {
		from = s.initAsset(fromUser, assetKind)
	}
	to := s.GetAsset(toUser, assetKind)
	if to == nil {
		to = s.initAsset(toUser, assetKind)
	}
	// from == to 时（冻结/解冻）两个字段必须在同一临界区内变更，
	// 否则并发读取方可能看到撕裂的余额对。
	from.mu.Lock()
	if to != from {
		to.mu.Lock()
		defer to.mu.Unlock()
	}
	defer from.mu.Unlock()

	switch kind {
	case AvailableToAvailable:
		if checkBalance && from.available.LessThan(amount) {
			return false
		}
		from.available = from.available.Sub(amount)
		to.available = to.available.Add(amount)
		return true
	case AvailableToFrozen:
		if checkBalance && from.available.LessThan(amount) {
			return false
		}
		from.available = from.available.Sub(amount)
		to.frozen = to.frozen.Add(amount)
		return true
	case FrozenToAvailable:
		if checkBalance && from.frozen.LessThan(amount) {
			return false
		}
		from.frozen = from.frozen.Sub(amount)
		to.available = to.available.Add(amount)
		return true
	}
	panic(fmt.Sprintf("invalid transfer type: %v", kind))
}

// Transfer 必须成功的转移，失败即调用方状态已损坏。
func (s *AssetService) Transfer(kind TransferType, fromUser, toUser int64, assetKind AssetKind, amount decimal.Decimal) error {
	if !s.TryTransfer(kind, fromUser, toUser, assetKind, amount, true) {
		return fmt.Errorf("transfer failed: type=%s from=%d to=%d asset=%s amount=%s",
			kind, fromUser, toUser, assetKind, amount)
	}
	return nil
}

// TryFreeze 冻结用户可用余额作为挂单保证金，余额不足返回 false。
func (s *AssetService) TryFreeze(userID int64, assetKind AssetKind, amount decimal.Decimal) bool {
	return s.TryTransfer(AvailableToFrozen, userID, userID, assetKind, amount, true)
}

// Unfreeze 解冻用户余额。解冻量超过冻结量说明上游状态已损坏，必须报错而非忽略。
func (s *AssetService) Unfreeze(userID int64, assetKind AssetKind, amount decimal.Decimal) error {
	if !s.TryTransfer(FrozenToAvailable, userID, userID, assetKind, amount, true) {
		return fmt.Errorf("unfreeze failed: user=%d asset=%s amount=%s", userID, assetKind, amount)
	}
	return nil
}
