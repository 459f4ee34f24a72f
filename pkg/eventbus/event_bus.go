package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/autopeca/marketplace/pkg/serrors"
	"github.com/sirupsen/logrus"
)

type Subscriber struct {
	Handler interface{}
}

type EventBus interface {
	Publish(args ...interface{})
	Subscribe(handler interface{})
	Unsubscribe(handler interface{})
	Clear()
	SubscribersCount() int
}

type EventBusWithError interface {
	EventBus
	PublishE(args ...any) error
}

var (
	ErrNoSubscribers        = serrors.NewError("EVENTBUS_NO_SUBSCRIBERS", "no matching subscribers", "")
	ErrInvalidHandlerReturn = serrors.NewError("EVENTBUS_INVALID_HANDLER_RETURN", "invalid handler return signature", "")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// publisherImpl is safe for concurrent use; handlers run on the publishing goroutine.
type publisherImpl struct {
	log *logrus.Logger

	mu          sync.RWMutex
	subscribers []Subscriber
}

func NewEventPublisher(log *logrus.Logger) EventBusWithError {
	return &publisherImpl{log: log}
}

func MatchSignature(handler interface{}, args []interface{}) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func {
		return false
	}
	if t.NumIn() != len(args) {
		return false
	}

	for i, arg := range args {
		paramType := t.In(i)
		if arg == nil {
			if paramType.Kind() != reflect.Interface && paramType.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		argType := reflect.TypeOf(arg)
		if paramType.Kind() == reflect.Interface {
			if !argType.Implements(paramType) {
				return false
			}
			continue
		}
		if !argType.AssignableTo(paramType) {
			return false
		}
	}
	return true
}

func (p *publisherImpl) snapshot() []Subscriber {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Subscriber, len(p.subscribers))
	copy(out, p.subscribers)
	return out
}

func callArgs(handler interface{}, args []interface{}) []reflect.Value {
	t := reflect.TypeOf(handler)
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Zero(t.In(i))
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}
	return in
}

func (p *publisherImpl) Publish(args ...interface{}) {
	handled := false
	for _, subscriber := range p.snapshot() {
		if !MatchSignature(subscriber.Handler, args) {
			continue
		}
		v := reflect.ValueOf(subscriber.Handler)
		func() {
			defer func() {
				if r := recover(); r != nil && p.log != nil {
					p.log.Errorf("eventbus: handler %s panicked with args %v: %v", v.Type().String(), args, r)
				}
			}()
			v.Call(callArgs(subscriber.Handler, args))
			handled = true
		}()
	}

	if !handled && p.log != nil {
		p.log.Warnf("eventbus.Publish: no matching subscribers for event with args: %v", args)
	}
}

// PublishE calls every matching handler and joins their errors. Handlers may return
// nothing or a single error.
func (p *publisherImpl) PublishE(args ...any) error {
	handled := false
	var errs []error

	for _, subscriber := range p.snapshot() {
		if !MatchSignature(subscriber.Handler, args) {
			continue
		}
		handled = true
		v := reflect.ValueOf(subscriber.Handler)

		func() {
			defer func() {
				if r := recover(); r != nil {
					errs = append(errs, fmt.Errorf("eventbus: handler %s panicked: %v", v.Type().String(), r))
				}
			}()

			out := v.Call(callArgs(subscriber.Handler, args))
			switch {
			case len(out) == 0:
				return
			case len(out) != 1:
				errs = append(errs, fmt.Errorf("%w: handler %s returned %d values", ErrInvalidHandlerReturn, v.Type().String(), len(out)))
			case out[0].Type() != errorType:
				errs = append(errs, fmt.Errorf("%w: handler %s return type is %s", ErrInvalidHandlerReturn, v.Type().String(), out[0].Type().String()))
			case !out[0].IsNil():
				errs = append(errs, out[0].Interface().(error))
			}
		}()
	}

	if !handled {
		return ErrNoSubscribers
	}
	return errors.Join(errs...)
}

func (p *publisherImpl) Subscribe(handler interface{}) {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func {
		panic("handler must be a function")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, Subscriber{Handler: handler})
}

// Unsubscribe removes the first subscriber registered with the same function value.
func (p *publisherImpl) Unsubscribe(handler interface{}) {
	target := reflect.ValueOf(handler)
	if target.Kind() != reflect.Func {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, subscriber := range p.subscribers {
		if reflect.ValueOf(subscriber.Handler).Pointer() == target.Pointer() {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			return
		}
	}
}

func (p *publisherImpl) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = nil
}

func (p *publisherImpl) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}
