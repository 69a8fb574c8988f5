// Command ctoken drives a deployed confidential (ERC-7984) token from the command line.
package main

func main() {
	Execute()
}
