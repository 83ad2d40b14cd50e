// Package media defines the media kinds handled by mediasort and the
// classifier that assigns them.
//
// Classification is extension driven: image, video and audio sets select a
// base kind, the leave-in-place set (plus compound suffixes such as .fg.op)
// marks files that must never move, and anything else is ignored entirely.
// Videos may then be upgraded to panoramic video by a pluggable
// PanoramaPredicate; the default rule looks at the extension, filename tokens,
// the resolved device and the container projection.
package media
