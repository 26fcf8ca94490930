package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"duskledger/internal/chain"
	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
	"duskledger/internal/mempool"
	"duskledger/internal/p2p"
	"duskledger/internal/storage"
	"duskledger/internal/wallet"
	"duskledger/internal/wire"
)

// console is the line-oriented operator surface: createTx, whoami,
// walletTxs, blocks, blockTxs, accs, chain, echo, exit. It is an
// external collaborator to the consensus core, talking to it only
// through the wallet, store, tree and mempool handles it was built with.
type console struct {
	wallet    *wallet.Wallet
	store     *storage.Store
	tree      *chain.Tree
	pool      *mempool.Mempool
	manager   *p2p.Manager
	accountID crypto.Digest
}

func newConsole(w *wallet.Wallet, store *storage.Store, tree *chain.Tree, pool *mempool.Mempool, manager *p2p.Manager, accountID crypto.Digest) *console {
	return &console{wallet: w, store: store, tree: tree, pool: pool, manager: manager, accountID: accountID}
}

func (c *console) run(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(out, "> ")
			continue
		}
		if !c.dispatch(line, out) {
			return
		}
		fmt.Fprint(out, "> ")
	}
}

// dispatch runs one command line and reports whether the console should
// keep reading ("exit" returns false).
func (c *console) dispatch(line string, out io.Writer) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "createTx":
		c.createTx(args, out)
	case "whoami":
		c.whoami(out)
	case "walletTxs":
		c.walletTxs(out)
	case "blocks":
		c.blocks(out)
	case "blockTxs":
		c.blockTxs(args, out)
	case "accs":
		c.accs(out)
	case "chain":
		c.chain(out)
	case "echo":
		fmt.Fprintln(out, strings.Join(args, " "))
	case "exit":
		fmt.Fprintln(out, "bye")
		return false
	default:
		fmt.Fprintf(out, "error: unknown command %q\n", cmd)
	}
	return true
}

func (c *console) createTx(args []string, out io.Writer) {
	if len(args) != 2 {
		fmt.Fprintln(out, "error: usage: createTx <amount> <receiver-hex-64>")
		return
	}
	amount, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(out, "error: bad amount: %v\n", err)
		return
	}
	raw, err := hex.DecodeString(args[1])
	if err != nil {
		fmt.Fprintf(out, "error: bad receiver hex: %v\n", err)
		return
	}
	receiver, ok := crypto.DigestFromBytes(raw)
	if !ok {
		fmt.Fprintf(out, "error: receiver must be %d bytes hex-encoded\n", crypto.Size)
		return
	}

	tx, err := c.wallet.CreateTransaction(receiver, uint32(amount))
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	if err := c.pool.Add(tx); err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	buf := make([]byte, tx.Size())
	if _, err := tx.Serialize(buf, 0); err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	c.manager.Broadcast(wire.MsgTransaction, buf)
	fmt.Fprintf(out, "created tx %s\n", hex.EncodeToString(tx.ID.Bytes()))
}

func (c *console) whoami(out io.Writer) {
	fmt.Fprintf(out, "account=%s public_key=%s\n",
		hex.EncodeToString(c.accountID.Bytes()), hex.EncodeToString(c.wallet.PublicKey()))
}

func (c *console) walletTxs(out io.Writer) {
	for _, rec := range c.wallet.Transactions() {
		fmt.Fprintf(out, "%s sender=%s receiver=%s amount=%d seq=%d status=%s\n",
			hex.EncodeToString(rec.Tx.ID.Bytes()),
			hex.EncodeToString(rec.Tx.Sender.Bytes()),
			hex.EncodeToString(rec.Tx.Receiver.Bytes()),
			rec.Tx.Amount, rec.Tx.Sequence, rec.Status)
	}
}

// blocks walks the committed chain backward from the tip, following each
// header's PrevBlockID until it reaches the zero genesis marker or a
// previous block that storage does not hold or cannot decode.
func (c *console) blocks(out io.Writer) {
	id, header := c.tree.Valid()
	for {
		fmt.Fprintf(out, "seq=%d id=%s\n", header.Sequence, hex.EncodeToString(id.Bytes()))
		if header.PrevBlockID.IsZero() {
			return
		}
		raw, err := c.store.GetBlock(header.PrevBlockID)
		if err != nil {
			return
		}
		var block ledger.Block
		if _, err := block.Deserialize(raw, 0); err != nil {
			return
		}
		id, header = block.ID, block.Header
	}
}

func (c *console) blockTxs(args []string, out io.Writer) {
	if len(args) != 1 {
		fmt.Fprintln(out, "error: usage: blockTxs <block-hex-64>")
		return
	}
	raw, err := hex.DecodeString(args[0])
	if err != nil {
		fmt.Fprintf(out, "error: bad block hex: %v\n", err)
		return
	}
	id, ok := crypto.DigestFromBytes(raw)
	if !ok {
		fmt.Fprintf(out, "error: block id must be %d bytes hex-encoded\n", crypto.Size)
		return
	}
	data, err := c.store.GetBlock(id)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	var block ledger.Block
	if _, err := block.Deserialize(data, 0); err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	for _, tx := range block.Transactions {
		fmt.Fprintf(out, "%s sender=%s receiver=%s amount=%d seq=%d\n",
			hex.EncodeToString(tx.ID.Bytes()),
			hex.EncodeToString(tx.Sender.Bytes()),
			hex.EncodeToString(tx.Receiver.Bytes()),
			tx.Amount, tx.Sequence)
	}
}

func (c *console) accs(out io.Writer) {
	_ = c.store.IterateBalances(func(id crypto.Digest, value []byte) bool {
		var bal ledger.BalanceProjection
		if _, err := bal.Deserialize(value, 0); err != nil {
			return true
		}
		fmt.Fprintf(out, "%s balance=%d last_seq=%d\n", hex.EncodeToString(id.Bytes()), bal.Balance, bal.LastSequence)
		return true
	})
}

func (c *console) chain(out io.Writer) {
	id, header := c.tree.Valid()
	fmt.Fprintf(out, "tip=%s seq=%d nodes=%d tip_support=%d\n",
		hex.EncodeToString(id.Bytes()), header.Sequence, c.tree.Size(), c.tree.TipSupportSum())
}
