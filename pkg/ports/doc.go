/*
Package ports defines the driven ports (interfaces) of the cadloop engine.

These interfaces decouple the model store, sandbox and view pipeline from the
geometry kernel, the rasterizing projector, the export codecs and the storage
backends that receive rendered artifacts.

# Key Interfaces

  - Kernel: the Geometry Capability (primitives, booleans, transforms, fillets, tessellation).
  - Projector: turns a solid and a camera into shaded polygons or edge paths.
  - Exporter: encodes a solid into STL, 3MF or STEP bytes.
  - ArtifactSink: stores render and export artifacts under a key.
  - Executor: runs modeling code and returns an ExecutionResult.
*/
package ports
