package services

import (
	"github.com/newrelic/go-agent/v3/newrelic"
)

func (s *EventService) startTxn(name string) *newrelic.Transaction {
	if s.tracer == nil {
		return nil
	}
	return s.tracer.StartTransaction(name)
}

func (s *EventService) endTxn(txn *newrelic.Transaction) {
	if s.tracer != nil {
		s.tracer.EndTransaction(txn)
	}
}

func (s *EventService) recordTxnError(txn *newrelic.Transaction, err error) {
	if s.tracer != nil {
		s.tracer.RecordError(txn, err)
	}
}
