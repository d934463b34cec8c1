// Package textutil provides the small text transforms the pipeline needs:
// converting saved article HTML into the plain text the generation backend
// accepts, and tidying titles for feed presentation.
package textutil
