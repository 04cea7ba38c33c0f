// Command depfacts extracts fact triples from dependency-parsed text.
package main

func main() {
	Execute()
}
