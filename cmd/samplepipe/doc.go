// Command samplepipe runs a sample pipeline: pre-hooks, runners fanned out
// over sample partitions, merging of their observations, and post-hooks.
//
// Usage:
//
//	samplepipe run [samples.yaml]   run the pipeline
//	samplepipe hooks                print the scheduled hook order
//	samplepipe config init          write a sample configuration
//	samplepipe config validate      check the configuration
//
// Runner contexts re-execute the binary with the hidden "context" command.
package main
