// Package static is the compile-time side of emission. A Program owns a data
// segment and a code segment; routines are translated into static blocks
// whose emit contexts resolve names through the program's Scope and whose
// finished streams are appended to the code at the block's position.
package static
