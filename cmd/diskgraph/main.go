// Command diskgraph scans filesystems into a cached path graph and reports
// directory sizes.
package main

func main() {
	Execute()
}
