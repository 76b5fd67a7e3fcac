// Package sge runs executor jobs on a Sun Grid Engine cluster by driving the
// qsub, qstat, qacct, and qdel command line clients.
//
// Jobs are submitted in binary mode with -terse so the job number can be read
// from stdout. Completion is detected when qstat -j stops knowing the job; the
// exit status is then read from qacct, which may lag behind the scheduler and
// is therefore retried.
package sge
