/*
Package domain contains the value types and error taxonomy of the cadloop engine.

It describes models, execution results, view specifications, projections,
render artifacts and printability reports. The package is pure: it performs
no I/O and depends on no geometry or rendering library, following the
hexagonal layout of the rest of the module.

# Key Entities

  - Model: a named slot holding one immutable Solid and its revision history.
  - ExecutionResult: the transient outcome of running modeling code.
  - ViewSpec: a render request (3d, 2d, multiview, blueprint).
  - Projection: vector output of a projector for one camera.
  - Mesh: an indexed triangle mesh used for measurement and analysis.
  - Error: a typed error whose Kind drives transport status mapping.
*/
package domain
