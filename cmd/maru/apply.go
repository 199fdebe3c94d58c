package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maruhq/maru/pkg/client"
	"github.com/maruhq/maru/pkg/errdefs"
	"github.com/maruhq/maru/pkg/manifest"
	"github.com/maruhq/maru/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply deployment manifests from a file",
	Long: `Apply deployments from a YAML file. Documents are separated by ---;
existing deployments are updated in place.

Examples:
  # Apply a single deployment
  maru apply -f web.yaml

  # Apply several deployments from one file
  maru apply -f stack.yaml`,
	RunE: runApply,
}

var getCmd = &cobra.Command{
	Use:   "get {deployments|pods|nodes}",
	Short: "List resources",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a deployment",
	Long: `Delete a deployment by name. Accepts either a bare name or a
deployment/NAME reference.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest file (required)")
	_ = applyCmd.MarkFlagRequired("file")

	for _, cmd := range []*cobra.Command{applyCmd, getCmd, deleteCmd} {
		cmd.Flags().String("server", "http://localhost:8080", "Master API URL")
		rootCmd.AddCommand(cmd)
	}
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	server, _ := cmd.Flags().GetString("server")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open manifest file: %w", err)
	}
	defer f.Close()

	manifests, err := manifest.Parse(f)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		return fmt.Errorf("no manifests found in %s", filename)
	}

	c := client.NewClient(server)
	var failed []string
	for _, m := range manifests {
		if err := applyManifest(c, &m); err != nil {
			fmt.Fprintf(os.Stderr, "Error applying %s: %v\n", m.Describe(), err)
			failed = append(failed, m.Spec.Name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to apply: %s", strings.Join(failed, ", "))
	}
	return nil
}

// applyManifest creates the deployment, falling back to an update when it
// already exists.
func applyManifest(c *client.Client, m *manifest.Manifest) error {
	req, err := m.ToCreateRequest()
	if err != nil {
		return err
	}

	if _, err := c.CreateDeployment(req); err == nil {
		fmt.Printf("deployment/%s created\n", req.Name)
		return nil
	} else if !errors.Is(err, errdefs.ErrAlreadyExists) {
		return err
	}

	update := types.UpdateDeploymentRequest{
		Replicas:  req.Replicas,
		Image:     &req.Image,
		Resources: &req.Resources,
	}
	if _, err := c.UpdateDeployment(req.Name, update); err != nil {
		return err
	}
	fmt.Printf("deployment/%s configured\n", req.Name)
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	c := client.NewClient(server)

	switch strings.ToLower(args[0]) {
	case "deployments", "deployment", "deploy":
		deployments, err := c.ListDeployments()
		if err != nil {
			return err
		}
		return printDeployments(deployments)
	case "pods", "pod":
		pods, err := c.ListPods()
		if err != nil {
			return err
		}
		return printPods(pods)
	case "nodes", "node":
		nodes, err := c.ListNodes()
		if err != nil {
			return err
		}
		return printNodes(nodes)
	default:
		return fmt.Errorf("unknown resource type %q (available: deployments, pods, nodes)", args[0])
	}
}

func runDelete(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")

	name := args[0]
	if kind, rest, ok := strings.Cut(name, "/"); ok {
		switch strings.ToLower(kind) {
		case "deployment", "deployments", "deploy":
			name = rest
		default:
			return fmt.Errorf("unknown resource type %q (available: deployment)", kind)
		}
	}

	if err := client.NewClient(server).DeleteDeployment(name); err != nil {
		return err
	}
	fmt.Printf("deployment/%s deleted\n", name)
	return nil
}

func printDeployments(deployments []types.DeploymentResponse) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tIMAGE\tREPLICAS\tREADY\tCPU(m)\tMEMORY(MB)")
	for _, d := range deployments {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
			d.Name, d.Image, d.Replicas, d.ReadyReplicas,
			d.Resources.CPUMillis, d.Resources.MemoryMB)
	}
	return w.Flush()
}

func printPods(pods []types.Pod) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDEPLOYMENT\tSTATUS\tNODE\tIMAGE")
	for _, p := range pods {
		node := p.NodeName
		if node == "" {
			node = "<none>"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.DeploymentName, p.Status, node, p.Image)
	}
	return w.Flush()
}

func printNodes(nodes []types.NodeResponse) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tCPU USED/CAP(m)\tMEM USED/CAP(MB)\tADDRESS")
	for _, n := range nodes {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d/%d\t%s:%d\n",
			n.Name, n.Status,
			n.Used.CPUMillis, n.Capacity.CPUMillis,
			n.Used.MemoryMB, n.Capacity.MemoryMB,
			n.Address, n.Port)
	}
	return w.Flush()
}
