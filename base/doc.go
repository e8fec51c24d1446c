/*

Package base provides base data structures and functions for mfrec.

The base data structures and functions include:

* Error Classes

* Random Generator

*/
package base
