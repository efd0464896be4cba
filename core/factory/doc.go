// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[metrics.MetricsSink]()
//	reg.Register("influx", func(conf map[string]any) (metrics.MetricsSink, error) {
//	    var c struct{ URL string `json:"url"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newInflux(c.URL), nil
//	})
//	sink, err := reg.Create(factory.ModuleConfig{Type: "influx", Conf: map[string]any{"url": "http://influx:8086"}})
package factory
