// Package scan enumerates candidate files beneath a source root in a
// deterministic depth-first order.
package scan
