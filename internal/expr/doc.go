/*
Package expr parses ECSql statements and binds them to an EC schema. It covers
the ECSql language only; it does not generate native SQL and does not interact
with databases.

The expr package is split up into two stages: the Parse stage and the Resolve
stage.

# Parsing stage

The parsing stage takes an ECSql string and parses it into a statement tree.
The parser only processes information already encoded in the syntax of the
statement: class references, property paths, literals, parameters and
operators.

# Resolve stage

The Resolve stage binds the class and property names of the tree to the
classes of a schema registry. It expands "*" select items, numbers
parameters, and computes the type of every value expression. Parameters get
the type of the property they are compared with or assigned to.

The output of this stage retains the shape of the tree from the parse stage.
*/
package expr
