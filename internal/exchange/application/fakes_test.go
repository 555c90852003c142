package application

import (
	"context"
	"sync"

	"github.com/wyfcoding/exchange/internal/exchange/domain"
)

// memEventStore 内存事件日志，测试用。
type memEventStore struct {
	mu      sync.Mutex
	events  []*domain.StoredEvent
	uniques map[string]int64
	// 非空时 LoadEventsAfter 直接失败，模拟事件日志不可用
	loadErr error
}

func newMemEventStore() *memEventStore {
	return &memEventStore{uniques: make(map[string]int64)}
}

func (s *memEventStore) AppendBatch(_ context.Context, events []*domain.StoredEvent, uniques []*domain.UniqueEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	for _, u := range uniques {
		s.uniques[u.UniqueID] = u.SequenceID
	}
	return nil
}

func (s *memEventStore) LoadEventsAfter(_ context.Context, sequenceID int64) ([]*domain.StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var result []*domain.StoredEvent
	for _, e := range s.events {
		if e.SequenceID > sequenceID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *memEventStore) MaxSequenceID(_ context.Context) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return 0, 0, nil
	}
	last := s.events[len(s.events)-1]
	return last.SequenceID, last.CreatedAt, nil
}

func (s *memEventStore) HasUnique(_ context.Context, uniqueID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.uniques[uniqueID]
	return ok, nil
}

// mustAppend 预置已定序事件，模拟定序器先于引擎落库。
func (s *memEventStore) mustAppend(events ...domain.Event) {
	for _, event := range events {
		data, err := domain.SerializeEvent(event)
		if err != nil {
			panic(err)
		}
		base := event.Base()
		_ = s.AppendBatch(context.Background(), []*domain.StoredEvent{{
			SequenceID: base.SequenceID,
			PreviousID: base.PreviousID,
			Data:       data,
			CreatedAt:  base.CreatedAt,
		}}, nil)
	}
}

type memTradeStore struct {
	mu     sync.Mutex
	orders []*domain.Order
	trades []*domain.TradeRecord
}

func (s *memTradeStore) InsertOrders(_ context.Context, orders []*domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, orders...)
	return nil
}

func (s *memTradeStore) InsertTrades(_ context.Context, trades []*domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
	return nil
}

type memEventProducer struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *memEventProducer) SendEvents(_ context.Context, events []domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

type memTickProducer struct {
	mu       sync.Mutex
	messages []*domain.TickMessage
}

func (p *memTickProducer) SendTicks(_ context.Context, messages []*domain.TickMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, messages...)
	return nil
}

type memResultPublisher struct {
	mu            sync.Mutex
	notifications []*domain.Notification
	results       []*domain.APIResult
}

func (p *memResultPublisher) PublishNotification(_ context.Context, msg *domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, msg)
	return nil
}

func (p *memResultPublisher) PublishAPIResult(_ context.Context, msg *domain.APIResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, msg)
	return nil
}

type memBookPublisher struct {
	mu    sync.Mutex
	views []*domain.OrderBookView
}

func (p *memBookPublisher) PublishSnapshot(_ context.Context, view *domain.OrderBookView) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.views = append(p.views, view)
	return nil
}
