package riskgate

import (
	"sync"
	"sync/atomic"
)

// NotificationType enumerates the live event kinds consumed by out-of-band observers.
type NotificationType string

const (
	// NotificationForceLogout is sent to an identity whose bindings were revoked.
	NotificationForceLogout NotificationType = "FORCE_LOGOUT"
	// NotificationSessionUpdate is sent to admins on any binding create or delete.
	NotificationSessionUpdate NotificationType = "SESSION_UPDATE"
	// NotificationNewRiskEvent is sent to admins on every logged pipeline decision.
	NotificationNewRiskEvent NotificationType = "NEW_RISK_EVENT"
)

// Notification is a single out-of-band event. Reason is set for
// FORCE_LOGOUT; Event is set for NEW_RISK_EVENT.
type Notification struct {
	Type   NotificationType
	Reason string
	Event  *RiskEvent
}

// Notifier is the live notification channel boundary. Delivery is
// fire-and-forget and at-most-once: implementations must never block the
// caller, and a failed delivery never rolls back the state change that
// produced it.
type Notifier interface {
	NotifyIdentity(identityID string, n Notification)
	NotifyAdmins(n Notification)
}

// NoOpNotifier drops every notification.
type NoOpNotifier struct{}

// NotifyIdentity implements [Notifier].
func (NoOpNotifier) NotifyIdentity(string, Notification) {}

// NotifyAdmins implements [Notifier].
func (NoOpNotifier) NotifyAdmins(Notification) {}

// Hub is an in-process, lock-protected subscriber registry implementing
// [Notifier]. It exists as an explicit handle rather than ambient global
// state so it can later be swapped for a distributed pub/sub backend
// without touching pipeline logic.
type Hub struct {
	mu         sync.RWMutex
	byIdentity map[string][]*Subscription
	admins     []*Subscription
	dropped    atomic.Uint64
}

// NewHub creates an empty notification hub.
func NewHub() *Hub {
	return &Hub{
		byIdentity: make(map[string][]*Subscription),
	}
}

// Subscription is one observer's buffered notification stream.
type Subscription struct {
	hub        *Hub
	identityID string
	admin      bool
	ch         chan Notification
	closeOnce  sync.Once
}

// Subscribe registers an observer for the given identity. Admin observers
// additionally receive SESSION_UPDATE and NEW_RISK_EVENT broadcasts.
// buffer bounds the per-subscriber queue; overflow drops the notification.
func (h *Hub) Subscribe(identityID string, admin bool, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}

	sub := &Subscription{
		hub:        h,
		identityID: identityID,
		admin:      admin,
		ch:         make(chan Notification, buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if identityID != "" {
		h.byIdentity[identityID] = append(h.byIdentity[identityID], sub)
	}
	if admin {
		h.admins = append(h.admins, sub)
	}

	return sub
}

// Events returns the subscriber's notification stream.
func (s *Subscription) Events() <-chan Notification {
	return s.ch
}

// Close removes the subscription from the hub. The channel is not closed;
// already queued notifications stay readable.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.closeOnce.Do(func() {
		s.hub.remove(s)
	})
}

// NotifyIdentity delivers n to every live subscription for identityID.
// Never blocks; full subscriber queues drop the notification. The read
// lock is held across delivery because sends never block and Close
// compacts the subscriber slices in place.
func (h *Hub) NotifyIdentity(identityID string, n Notification) {
	if h == nil || identityID == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.byIdentity[identityID] {
		h.send(sub, n)
	}
}

// NotifyAdmins broadcasts n to every admin subscription. Never blocks.
func (h *Hub) NotifyAdmins(n Notification) {
	if h == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.admins {
		h.send(sub, n)
	}
}

// Dropped returns the count of notifications discarded due to full
// subscriber queues.
func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

func (h *Hub) send(sub *Subscription, n Notification) {
	select {
	case sub.ch <- n:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hub) remove(target *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if target.identityID != "" {
		subs := h.byIdentity[target.identityID]
		filtered := subs[:0]
		for _, sub := range subs {
			if sub != target {
				filtered = append(filtered, sub)
			}
		}
		if len(filtered) == 0 {
			delete(h.byIdentity, target.identityID)
		} else {
			h.byIdentity[target.identityID] = filtered
		}
	}
	if target.admin {
		filtered := h.admins[:0]
		for _, sub := range h.admins {
			if sub != target {
				filtered = append(filtered, sub)
			}
		}
		h.admins = filtered
	}
}
