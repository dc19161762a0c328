/*
Package sandbox runs agent-submitted modeling code.

Scripts are Go statement lists evaluated by an embedded interpreter. Every
call gets a fresh interpreter whose namespace holds the modeling primitives,
the edge selector constants X, Y and Z, and the packages math, strings,
strconv and sort. The variable result starts as the prior geometry of the
model (or an unbound shape on create) and is read back when the script ends:

	result = Box(60, 40, 30).Fillet(2)
	result = result.Sub(Cylinder(5, 40).Move(10, 0, 0))

Failures are classified into SyntaxError, RuntimeError, ResultMissing and
Timeout and returned inside the ExecutionResult.
*/
package sandbox
