// Package application 事件定序与交易引擎的应用服务。
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/exchange/internal/exchange/domain"
)

const (
	// 后台批处理单批上限
	maxBatchSize = 1000
	// 出站队列容量
	defaultQueueSize = 4096
)

// EngineConfig 引擎参数。
type EngineConfig struct {
	// Debug 打开后每个事件应用完都会执行一次全量一致性校验
	Debug bool
	// OrderBookDepth 发布快照的档位深度
	OrderBookDepth int
}

// TradingEngine 单写者事件循环：按定序顺序消费事件，驱动账本、
// 登记表、撮合与清算，出站副作用经有界队列由后台 worker 异步刷出。
type TradingEngine struct {
	assets   *domain.AssetService
	orders   *domain.OrderService
	match    *domain.MatchEngine
	clearing *domain.ClearingService

	store  domain.EventStore
	trades domain.TradeStore
	ticks  domain.TickProducer
	pub    domain.ResultPublisher
	books  domain.OrderBookPublisher
	logger *slog.Logger

	debug bool
	depth int

	// 最近成功应用的事件 sequenceId（水位线），查询面并发读取
	lastSequenceID atomic.Int64
	fatal          atomic.Bool
	// 本批事件是否改变了盘口
	orderBookChanged bool

	tickCh   chan *domain.TickMessage
	notifyCh chan *domain.Notification
	resultCh chan *domain.APIResult
	orderCh  chan []*domain.Order
	tradeCh  chan []*domain.TradeRecord
	bookCh   chan *domain.OrderBookView

	wg     sync.WaitGroup
	cancel context.CancelFunc

	// OnFatal 在进入致命状态后回调一次，服务入口用它终止进程
	OnFatal func()
}

func NewTradingEngine(
	assets *domain.AssetService,
	orders *domain.OrderService,
	match *domain.MatchEngine,
	clearing *domain.ClearingService,
	store domain.EventStore,
	trades domain.TradeStore,
	ticks domain.TickProducer,
	pub domain.ResultPublisher,
	books domain.OrderBookPublisher,
	cfg EngineConfig,
	logger *slog.Logger,
) *TradingEngine {
	depth := cfg.OrderBookDepth
	if depth <= 0 {
		depth = 100
	}
	return &TradingEngine{
		assets:   assets,
		orders:   orders,
		match:    match,
		clearing: clearing,
		store:    store,
		trades:   trades,
		ticks:    ticks,
		pub:      pub,
		books:    books,
		logger:   logger.With("module", "trading_engine"),
		debug:    cfg.Debug,
		depth:    depth,
		tickCh:   make(chan *domain.TickMessage, defaultQueueSize),
		notifyCh: make(chan *domain.Notification, defaultQueueSize),
		resultCh: make(chan *domain.APIResult, defaultQueueSize),
		orderCh:  make(chan []*domain.Order, defaultQueueSize),
		tradeCh:  make(chan []*domain.TradeRecord, defaultQueueSize),
		bookCh:   make(chan *domain.OrderBookView, 1),
	}
}

// Start 启动后台 worker。
func (e *TradingEngine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(5)
	go e.runTickWorker(ctx)
	go e.runNotifyWorker(ctx)
	go e.runResultWorker(ctx)
	go e.runDBWorker(ctx)
	go e.runOrderBookWorker(ctx)
}

// Stop 取消并等待全部 worker 退出，已出队未刷出的批次会先刷完。
func (e *TradingEngine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Fatal 引擎是否已进入致命状态。
func (e *TradingEngine) Fatal() bool {
	return e.fatal.Load()
}

// LastSequenceID 当前水位线。
func (e *TradingEngine) LastSequenceID() int64 {
	return e.lastSequenceID.Load()
}

func (e *TradingEngine) setFatal(msg string, args ...any) {
	e.logger.Error(msg, args...)
	if e.fatal.CompareAndSwap(false, true) {
		e.logger.Error("engine entered fatal state, halting event processing")
		if e.OnFatal != nil {
			e.OnFatal()
		}
	}
}

// Recover 启动时从事件日志回放水位线之后的全部事件。
func (e *TradingEngine) Recover(ctx context.Context) error {
	watermark := e.lastSequenceID.Load()
	stored, err := e.store.LoadEventsAfter(ctx, watermark)
	if err != nil {
		return fmt.Errorf("load events for recovery: %w", err)
	}
	e.logger.Info("replaying events from store", "count", len(stored), "after", watermark)
	for _, se := range stored {
		event, err := domain.DeserializeEvent(se.Data)
		if err != nil {
			return fmt.Errorf("decode stored event %d: %w", se.SequenceID, err)
		}
		e.ProcessEvent(ctx, event)
		if e.Fatal() {
			return fmt.Errorf("fatal state during recovery at sequence id %d", se.SequenceID)
		}
	}
	return nil
}

// ProcessMessages 应用一批事件，盘口变化时发布一次新快照。
func (e *TradingEngine) ProcessMessages(ctx context.Context, events []domain.Event) {
	e.orderBookChanged = false
	for _, event := range events {
		e.ProcessEvent(ctx, event)
	}
	if e.orderBookChanged {
		e.publishOrderBook(e.match.Snapshot(e.depth))
	}
}

// ProcessEvent 应用单个事件。重复事件跳过；水位线空洞先从事件日志
// 回补；链断裂、未知事件或应用中 panic 均为致命错误。
func (e *TradingEngine) ProcessEvent(ctx context.Context, event domain.Event) {
	if e.fatal.Load() {
		return
	}
	base := event.Base()
	watermark := e.lastSequenceID.Load()
	if base.SequenceID <= watermark {
		e.logger.Warn("skip duplicate event", "sequenceId", base.SequenceID, "watermark", watermark)
		return
	}
	if base.PreviousID > watermark {
		e.logger.Warn("event gap detected, replaying from store",
			"expectedPrevious", watermark, "previousId", base.PreviousID, "sequenceId", base.SequenceID)
		stored, err := e.store.LoadEventsAfter(ctx, watermark)
		if err != nil || len(stored) == 0 {
			e.setFatal("cannot load lost events from store", "error", err, "after", watermark)
			return
		}
		for _, se := range stored {
			missed, err := domain.DeserializeEvent(se.Data)
			if err != nil {
				e.setFatal("cannot decode stored event", "sequenceId", se.SequenceID, "error", err)
				return
			}
			e.ProcessEvent(ctx, missed)
		}
		return
	}
	if base.PreviousID != watermark {
		e.setFatal("broken event chain",
			"expectedPrevious", watermark, "previousId", base.PreviousID, "sequenceId", base.SequenceID)
		return
	}

	if err := e.applyEvent(event); err != nil {
		e.setFatal("apply event failed", "sequenceId", base.SequenceID, "error", err)
		return
	}
	e.lastSequenceID.Store(base.SequenceID)
	if e.debug {
		e.Validate()
	}
}

// applyEvent 分发到具体处理器，panic 转为错误由上层升级为致命状态。
func (e *TradingEngine) applyEvent(event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during apply: %v", r)
		}
	}()
	switch ev := event.(type) {
	case *domain.OrderRequestEvent:
		return e.createOrder(ev)
	case *domain.OrderCancelEvent:
		return e.cancelOrder(ev)
	case *domain.TransferEvent:
		return e.transfer(ev)
	}
	return fmt.Errorf("unknown event type %T", event)
}

// orderIDFor 订单 id 由定序 id 与事件年月推导，回放时可重现。
func orderIDFor(sequenceID, createdAt int64) int64 {
	t := time.UnixMilli(createdAt).UTC()
	return sequenceID*10000 + int64(t.Year()*100+int(t.Month()))
}

func (e *TradingEngine) createOrder(event *domain.OrderRequestEvent) error {
	orderID := orderIDFor(event.SequenceID, event.CreatedAt)
	order, err := e.orders.CreateOrder(event.SequenceID, event.CreatedAt, orderID,
		event.UserID, event.Direction, event.Price, event.Quantity)
	if err != nil {
		return err
	}
	if order == nil {
		// 余额不足，拒绝但不改变任何状态
		e.logger.Warn("create order rejected: insufficient balance",
			"user", event.UserID, "sequenceId", event.SequenceID)
		e.enqueueResult(domain.OrderFailedResult(event.RefID, "INSUFFICIENT_BALANCE",
			"create order failed.", event.CreatedAt))
		return nil
	}
	result, err := e.match.ProcessOrder(event.SequenceID, order)
	if err != nil {
		return err
	}
	if err := e.clearing.ClearMatchResult(result); err != nil {
		return err
	}
	e.orderBookChanged = true

	// 异步侧只允许拿订单副本，活跃订单还会被后续事件变更
	snapshot := order.Snapshot()
	e.enqueueResult(domain.OrderSuccessResult(event.RefID, &snapshot, event.CreatedAt))
	e.enqueueNotification(&domain.Notification{
		Type:      "order_matched",
		UserID:    order.UserID,
		Data:      snapshot,
		CreatedAt: event.CreatedAt,
	})

	if len(result.Details) == 0 {
		return nil
	}
	var closedOrders []*domain.Order
	if s := result.TakerOrder.Snapshot(); s.Status.IsFinal() {
		closedOrders = append(closedOrders, &s)
	}
	trades := make([]*domain.TradeRecord, 0, len(result.Details)*2)
	ticks := make([]*domain.Tick, 0, len(result.Details))
	for _, detail := range result.Details {
		if s := detail.Maker.Snapshot(); s.Status.IsFinal() {
			closedOrders = append(closedOrders, &s)
		}
		trades = append(trades,
			tradeRecordFor(event.SequenceID, event.CreatedAt, detail, domain.TradeTaker),
			tradeRecordFor(event.SequenceID, event.CreatedAt, detail, domain.TradeMaker))
		ticks = append(ticks, &domain.Tick{
			SequenceID:    event.SequenceID,
			TakerUserID:   detail.Taker.UserID,
			MakerUserID:   detail.Maker.UserID,
			Price:         detail.Price,
			Quantity:      detail.Quantity,
			TakerIsBuying: detail.Taker.Direction == domain.DirectionBuy,
			CreatedAt:     event.CreatedAt,
		})
	}
	e.enqueueClosedOrders(closedOrders)
	e.enqueueTrades(trades)
	e.enqueueTicks(&domain.TickMessage{SequenceID: event.SequenceID, Ticks: ticks})
	return nil
}

func tradeRecordFor(sequenceID, ts int64, detail domain.MatchDetail, side domain.TradeType) *domain.TradeRecord {
	this, counter := detail.Taker, detail.Maker
	if side == domain.TradeMaker {
		this, counter = detail.Maker, detail.Taker
	}
	return &domain.TradeRecord{
		SequenceID:     sequenceID,
		OrderID:        this.ID,
		CounterOrderID: counter.ID,
		UserID:         this.UserID,
		CounterUserID:  counter.UserID,
		Direction:      this.Direction,
		Type:           side,
		Price:          detail.Price,
		Quantity:       detail.Quantity,
		CreatedAt:      ts,
	}
}

func (e *TradingEngine) cancelOrder(event *domain.OrderCancelEvent) error {
	order := e.orders.GetOrder(event.RefOrderID)
	if order == nil || order.UserID != event.UserID {
		// 订单不存在或归属不符
		e.enqueueResult(domain.OrderFailedResult(event.RefID, "ORDER_NOT_FOUND",
			"cancel order failed.", event.CreatedAt))
		return nil
	}
	if err := e.match.Cancel(event.CreatedAt, order); err != nil {
		return err
	}
	if err := e.clearing.ClearCancelOrder(order); err != nil {
		return err
	}
	e.orderBookChanged = true
	snapshot := order.Snapshot()
	e.enqueueResult(domain.OrderSuccessResult(event.RefID, &snapshot, event.CreatedAt))
	e.enqueueNotification(&domain.Notification{
		Type:      "order_canceled",
		UserID:    event.UserID,
		Data:      snapshot,
		CreatedAt: event.CreatedAt,
	})
	return nil
}

func (e *TradingEngine) transfer(event *domain.TransferEvent) error {
	ok := e.assets.TryTransfer(domain.AvailableToAvailable,
		event.FromUserID, event.ToUserID, event.Asset, event.Amount, event.Sufficient)
	if !ok {
		e.logger.Warn("transfer rejected: insufficient balance",
			"from", event.FromUserID, "to", event.ToUserID, "asset", event.Asset, "amount", event.Amount)
		if event.RefID != "" {
			e.enqueueResult(domain.OrderFailedResult(event.RefID, "INSUFFICIENT_BALANCE",
				"transfer failed.", event.CreatedAt))
		}
	}
	return nil
}

func (e *TradingEngine) enqueueTicks(msg *domain.TickMessage) { e.tickCh <- msg }

func (e *TradingEngine) enqueueNotification(n *domain.Notification) { e.notifyCh <- n }

func (e *TradingEngine) enqueueResult(r *domain.APIResult) { e.resultCh <- r }

func (e *TradingEngine) enqueueTrades(t []*domain.TradeRecord) { e.tradeCh <- t }
func (e *TradingEngine) enqueueClosedOrders(o []*domain.Order) {
	if len(o) > 0 {
		e.orderCh <- o
	}
}

// publishOrderBook 快照只保留最新一份，旧的直接丢弃。
func (e *TradingEngine) publishOrderBook(view *domain.OrderBookView) {
	for {
		select {
		case e.bookCh <- view:
			return
		default:
			select {
			case <-e.bookCh:
			default:
			}
		}
	}
}

func (e *TradingEngine) runTickWorker(ctx context.Context) {
	defer e.wg.Done()
	e.logger.Info("tick worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.tickCh:
			batch := []*domain.TickMessage{msg}
		drain:
			for len(batch) < maxBatchSize {
				select {
				case m := <-e.tickCh:
					batch = append(batch, m)
				default:
					break drain
				}
			}
			if err := e.ticks.SendTicks(context.Background(), batch); err != nil {
				e.logger.Error("send ticks failed", "count", len(batch), "error", err)
			}
		}
	}
}

func (e *TradingEngine) runNotifyWorker(ctx context.Context) {
	defer e.wg.Done()
	e.logger.Info("notification worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.notifyCh:
			if err := e.pub.PublishNotification(context.Background(), msg); err != nil {
				e.logger.Error("publish notification failed", "error", err)
			}
		}
	}
}

func (e *TradingEngine) runResultWorker(ctx context.Context) {
	defer e.wg.Done()
	e.logger.Info("api result worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.resultCh:
			if err := e.pub.PublishAPIResult(context.Background(), msg); err != nil {
				e.logger.Error("publish api result failed", "refId", msg.RefID, "error", err)
			}
		}
	}
}

// runDBWorker 批量落库已完结订单与成交明细，批内排序保证重放幂等。
func (e *TradingEngine) runDBWorker(ctx context.Context) {
	defer e.wg.Done()
	e.logger.Info("db worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case first := <-e.tradeCh:
			batch := first
		drainTrades:
			for len(batch) < maxBatchSize {
				select {
				case more := <-e.tradeCh:
					batch = append(batch, more...)
				default:
					break drainTrades
				}
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].Less(batch[j]) })
			if err := e.trades.InsertTrades(context.Background(), batch); err != nil {
				e.logger.Error("insert trades failed", "count", len(batch), "error", err)
			}
		case first := <-e.orderCh:
			batch := first
		drainOrders:
			for len(batch) < maxBatchSize {
				select {
				case more := <-e.orderCh:
					batch = append(batch, more...)
				default:
					break drainOrders
				}
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
			if err := e.trades.InsertOrders(context.Background(), batch); err != nil {
				e.logger.Error("insert closed orders failed", "count", len(batch), "error", err)
			}
		}
	}
}

func (e *TradingEngine) runOrderBookWorker(ctx context.Context) {
	defer e.wg.Done()
	e.logger.Info("order book worker started")
	var lastPublished int64
	for {
		select {
		case <-ctx.Done():
			return
		case view := <-e.bookCh:
			if view.SequenceID <= lastPublished {
				continue
			}
			if err := e.books.PublishSnapshot(context.Background(), view); err != nil {
				e.logger.Error("publish order book snapshot failed", "sequenceId", view.SequenceID, "error", err)
				continue
			}
			lastPublished = view.SequenceID
		}
	}
}
