package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// auditQueueDepth 审计队列当前深度
	auditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "file_audit_queue_depth",
		Help: "Number of audit records waiting to be persisted",
	})

	// auditDroppedTotal 因队列满被丢弃的审计记录数
	auditDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "file_audit_dropped_total",
		Help: "Audit records dropped because the queue was full",
	})

	// auditWriteErrorsTotal 审计写入失败次数
	auditWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "file_audit_write_errors_total",
		Help: "Audit records that failed to persist",
	})
)
