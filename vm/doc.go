// Package vm implements an ECMAScript execution core.
//
// This package contains:
//   - the tagged Value encoding and the VM heap (strings, floats, objects)
//   - the string interner with magic and external magic strings
//   - objects, property pairs, the property hashmap and the LCache
//   - lexical environments and identifier resolution
//   - the bytecode unit format, the assembler and the disassembler
//   - the interpreter loop with control-flow contexts and the call driver
//   - built-in objects and the reachability sweep
//
// A VM is single-threaded. Bytecode is produced by an external compiler or
// by the Assembler and linked into a VM with Link before it can run.
package vm
