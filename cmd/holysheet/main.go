// Command holysheet runs the upload catalog daemon and its client tooling.
package main

func main() {
	Execute()
}
