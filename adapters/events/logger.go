package events

import (
	"github.com/ThreeDotsLabs/watermill"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("keyvault/events")

// goLogAdapter routes watermill's internal logging through go-log
type goLogAdapter struct {
	fields watermill.LogFields
}

// NewLoggerAdapter returns a watermill logger writing to the keyvault/events logger
func NewLoggerAdapter() watermill.LoggerAdapter {
	return &goLogAdapter{}
}

func (a *goLogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	log.Errorw(msg, a.keyvals(fields, "error", err)...)
}

func (a *goLogAdapter) Info(msg string, fields watermill.LogFields) {
	log.Infow(msg, a.keyvals(fields)...)
}

func (a *goLogAdapter) Debug(msg string, fields watermill.LogFields) {
	log.Debugw(msg, a.keyvals(fields)...)
}

// Trace is too chatty for go-log's levels and folds into debug
func (a *goLogAdapter) Trace(msg string, fields watermill.LogFields) {
	log.Debugw(msg, a.keyvals(fields)...)
}

func (a *goLogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &goLogAdapter{fields: a.fields.Add(fields)}
}

func (a *goLogAdapter) keyvals(fields watermill.LogFields, extra ...interface{}) []interface{} {
	all := a.fields.Add(fields)
	kv := make([]interface{}, 0, 2*len(all)+len(extra))
	for k, v := range all {
		kv = append(kv, k, v)
	}
	return append(kv, extra...)
}
