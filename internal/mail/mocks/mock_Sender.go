// Package mocks provides test doubles for the mail sender.
package mocks

import (
	"context"

	mail "github.com/sells-group/digest-cli/internal/mail"
	mock "github.com/stretchr/testify/mock"
)

// MockSender is a mock type for the Sender interface.
type MockSender struct {
	mock.Mock
}

// Send provides a mock function with given fields: ctx, msg
func (_m *MockSender) Send(ctx context.Context, msg mail.Message) error {
	ret := _m.Called(ctx, msg)

	if len(ret) == 0 {
		panic("no return value specified for Send")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, mail.Message) error); ok {
		r0 = rf(ctx, msg)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockSender creates a new instance of MockSender. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockSender(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSender {
	m := &MockSender{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
