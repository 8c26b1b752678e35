// Package metrics exports unit-of-work save outcomes to Prometheus.
//
// A SaveCollector is registered once and shared by every unit of work:
//
//	collector := metrics.NewSaveCollector(prometheus.DefaultRegisterer, "orders")
//	unit.SetObserver(collector)
package metrics
