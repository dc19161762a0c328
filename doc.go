/*
Package cadloop is an execute-and-render feedback loop for parametric CAD
models, built for AI agents that design parts one edit at a time.

An agent submits modeling code. cadloop runs it in a sandboxed interpreter
against a named model, commits the resulting solid only when the run
succeeds, and answers with images and measurements the agent can reason
about before its next edit.

# Concept

  - Model Store: the session-scoped map from name to current geometry and
    edit history. Mutations of one name are serialized; readers always see a
    complete snapshot.
  - Execution Sandbox: a fresh Go interpreter per call with the modeling
    primitives, math, strings, strconv and sort in scope. "result" holds the
    prior geometry on modify.
  - Offscreen Display Arbiter: the single raster context, handed to one
    render at a time with a bounded wait.
  - View Pipeline: 3d shaded, 2d orthographic with hidden lines, a 2x2
    multiview at one shared scale, and annotated blueprints.
  - Printability Analyzer: watertightness, manifoldness, wall thickness and
    overhang checks on the tessellated surface.

# Usage

	eng, err := cadloop.New()
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	ctx := context.Background()
	res, err := eng.CreateModel(ctx, "bracket", "result = Box(60, 40, 30)")
	if err != nil {
		log.Fatal(err) // NameConflict, Busy or an invalid name
	}
	if !res.Success {
		log.Fatal(res.Error) // SyntaxError, RuntimeError, ResultMissing or Timeout
	}

	_, err = eng.ModifyModel(ctx, "bracket", "result = result.Sub(Cylinder(8, 40))")
	sheet, err := eng.Render(ctx, "bracket", domain.ViewSpec{Kind: domain.ViewBlueprint})

Transports (MCP over stdio, REST over HTTP) live in pkg/adapters and the
cadloop command wires them to an Engine.
*/
package cadloop
