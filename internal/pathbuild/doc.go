// Package pathbuild computes destination paths of the form
// <root>/<date>/<kind>/[<device>/]<name>.
package pathbuild
