package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srediag/namedipc/pkg/shm"
)

func (c *cli) regionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "region",
		Short: "Create, write, read and remove shared memory regions",
	}
	cmd.AddCommand(
		regionCreateCmd(),
		regionWriteCmd(),
		regionReadCmd(),
		regionRmCmd(),
	)
	return cmd
}

func regionCreateCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a region of at least --size bytes, or attach to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := shm.Create(args[0], size)
			if err != nil {
				return err
			}
			defer r.Close()
			fmt.Fprintln(cmd.OutOrStdout(), createdWord(r.Created()))
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "region size in bytes")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}

// window checks that [offset, offset+n) lies inside a region of size bytes.
func window(size, offset, n int) error {
	if offset < 0 || n < 0 || offset > size || n > size-offset {
		return fmt.Errorf("range [%d, %d) is outside the %d-byte region", offset, offset+n, size)
	}
	return nil
}

func regionWriteCmd() *cobra.Command {
	var size, offset int
	cmd := &cobra.Command{
		Use:   "write NAME DATA",
		Short: "Copy DATA into a region at --offset, creating the region if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			data := []byte(args[1])
			if err := window(size, offset, len(data)); err != nil {
				return err
			}
			r, buf, err := shm.CreateMapped(args[0], size)
			if err != nil {
				return err
			}
			defer r.Close()
			copy(buf[offset:], data)
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "region size in bytes")
	cmd.Flags().IntVar(&offset, "offset", 0, "byte offset to write at")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}

func regionReadCmd() *cobra.Command {
	var size, offset, length int
	cmd := &cobra.Command{
		Use:   "read NAME",
		Short: "Print bytes of an existing region",
		Long: `Read prints --length bytes from --offset. Without --length it prints up to the
end of the region with trailing zero bytes removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := length
			if n < 0 {
				n = size - offset
			}
			if err := window(size, offset, n); err != nil {
				return err
			}
			r, err := shm.Open(args[0], size)
			if err != nil {
				return err
			}
			defer r.Close()
			buf, err := r.Map(size)
			if err != nil {
				return err
			}
			out := buf[offset : offset+n]
			if length < 0 {
				out = bytes.TrimRight(out, "\x00")
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "region size in bytes")
	cmd.Flags().IntVar(&offset, "offset", 0, "byte offset to read from")
	cmd.Flags().IntVar(&length, "length", -1, "number of bytes to print")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}

func regionRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME...",
		Short: "Remove region names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			for _, name := range args {
				if err := shm.Unlink(name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
