// Package model defines the evidence records and the verification report.
//
// This package contains the following main types:
//   - HostnameEvidence: DNS answers for one API hostname, classified
//   - RouteEvidence: the kernel route towards the API target
//   - HopEvidence: traceroute hops towards the API target
//   - VPNStatus: which tunnel mechanism (if any) is established
//   - Evidence: the in-progress set of records filled by the pipeline
//   - VerificationReport: evidence plus the overall verdict and remediation
//
// Design decision: evidence types live in their own package so the
// collectors, the verdict aggregator, the report writers and the history
// store can share them without import cycles.
//
// Every record is created once by a collector and not modified afterwards.
// All types serialize to JSON for report output and history storage.
package model
