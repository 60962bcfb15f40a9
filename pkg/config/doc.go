// Package config parses YAML graph submission files into engine task graphs.
//
// A submission is an ordered list of node descriptors plus optional cost
// weights:
//
//	name: nightly-etl
//	weights:
//	  duration: 0.5
//	  cost: 0.3
//	  resource: 0.2
//	nodes:
//	  - id: extract
//	    type: data
//	    priority: 5
//	    estimated_duration: 30s
//	  - id: transform
//	    type: compute
//	    depends_on: [extract]
//	  - id: report
//	    type: io
//	    depends_on: [transform]
//	    continue_on: [transform]
//
// Unknown fields are rejected. The resulting graph still passes through the
// engine validator before optimization or scheduling.
package config
