// Package pipeline runs the evidence collectors of one verification pass in
// sequence.
//
// Each collector is wrapped in a Step that receives the shared
// model.Evidence and fills in its own field. Steps run one after another,
// never concurrently: later steps depend on earlier ones (the route and hop
// steps trace the address the DNS step resolved), and the external commands
// they run should not compete for the same network path.
//
// Design decision: Steps record collector failures inside the evidence and
// return nil. A returned error means the step itself could not run; the
// pipeline records it and, by default, moves on to the next step.
package pipeline
