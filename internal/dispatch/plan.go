package dispatch

import (
	"strconv"

	"github.com/google/uuid"

	"samplepipe/internal/module"
	"samplepipe/internal/sample"
)

// Context is one (runner, partition) unit of work.
type Context struct {
	ID        string
	Runner    *module.Runner
	Partition string
	Samples   *sample.Samples
	Workdir   string
}

// DirFunc maps a runner name and partition key to a working directory.
type DirFunc func(runner, partition string) string

// Plan partitions samples for every runner. Contexts are ordered by runner,
// then by first appearance of their partition. Partition keys that land on a
// directory already taken in this plan get an instance-id suffix.
func Plan(runners []*module.Runner, samples *sample.Samples, dir DirFunc) []*Context {
	var contexts []*Context
	used := make(map[string]bool)
	for _, runner := range runners {
		for _, group := range Partition(runner, samples) {
			key := group.Key
			workdir := dir(runner.Name, key)
			for n := 0; workdir != "" && used[workdir]; n++ {
				key = group.Key + "-" + uniqueSuffix(group.Samples, n)
				workdir = dir(runner.Name, key)
			}
			used[workdir] = true
			contexts = append(contexts, &Context{
				ID:        uuid.NewString(),
				Runner:    runner,
				Partition: key,
				Samples:   group.Samples,
				Workdir:   workdir,
			})
		}
	}
	return contexts
}

func uniqueSuffix(samples *sample.Samples, n int) string {
	suffix := uuid.NewString()[:8]
	if len(samples.Items) > 0 {
		suffix = samples.Items[0].InstanceID().String()[:8]
	}
	if n > 0 {
		suffix += "-" + strconv.Itoa(n)
	}
	return suffix
}

// Partition splits samples the way runner asks for.
func Partition(runner *module.Runner, samples *sample.Samples) []sample.Group {
	switch {
	case samples.Len() == 0:
		return nil
	case runner.Individual:
		return samples.Individual()
	case runner.SplitBy != "":
		return samples.Split(runner.SplitBy)
	default:
		return []sample.Group{{Samples: samples.Filter(func(*sample.Sample) bool { return true })}}
	}
}
